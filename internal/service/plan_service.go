package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"planwise/internal/model"
	"planwise/internal/repository"
)

// Validation errors returned by plan mutations. The offending call is
// rejected synchronously and stored state stays unchanged.
var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrInvalidPlanDate  = errors.New("invalid plan date, expected YYYY-MM-DD")
	ErrPlanDateTooFar   = errors.New("plan date more than 7 days in the future")
	ErrEmptyTaskOrder   = errors.New("plan needs at least one task")
	ErrDuplicateTask    = errors.New("duplicate task in order")
	ErrTaskNotOwned     = errors.New("task missing or not owned by user")
	ErrCancelledTask    = errors.New("cancelled task cannot be planned")
	ErrTaskSetChanged   = errors.New("reorder must keep the same task set")
	ErrTaskNotInPlan    = errors.New("completion entry references task outside the plan")
	ErrInvalidMood      = errors.New("mood must be between 1 and 5")
)

const planDateLayout = "2006-01-02"

// maxPlanFutureDays caps how far ahead a plan may be created.
const maxPlanFutureDays = 7

// CompletionEntry is one per-task reflection submission.
type CompletionEntry struct {
	TaskID        string
	Completed     bool
	ActualMinutes *int
	SkippedReason string
}

// CompletionStats summarizes live progress against a plan.
type CompletionStats struct {
	Completed int
	Total     int
}

// Ratio returns completed/total, 0 for an empty or absent plan.
func (s CompletionStats) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// Reflection summarizes a submitted reflection.
type Reflection struct {
	PlanDate            string
	TotalTasks          int
	CompletedTasks      int
	CompletionRate      float64
	TotalPlannedMinutes int
	TotalActualMinutes  int
	Mood                *int
}

// PlanService owns the daily plan lifecycle: upsert, reorder, reflection, and
// the read surface consumed by the dispatcher and suggestion engine.
type PlanService struct {
	planRepo *repository.PlanRepository
	taskRepo *repository.TaskRepository
	userRepo *repository.UserRepository
	now      func() time.Time
}

func NewPlanService(planRepo *repository.PlanRepository, taskRepo *repository.TaskRepository, userRepo *repository.UserRepository) *PlanService {
	return &PlanService{planRepo: planRepo, taskRepo: taskRepo, userRepo: userRepo, now: time.Now}
}

// UpsertPlan creates or replaces the plan for (user, date). The task order is
// replaced wholesale; adding or removing tasks always goes through here, never
// through reorder.
func (s *PlanService) UpsertPlan(ctx context.Context, userID, planDate string, taskOrder []string, notes string) (*model.DailyPlan, error) {
	if _, err := time.Parse(planDateLayout, planDate); err != nil {
		return nil, ErrInvalidPlanDate
	}
	capDate, err := s.maxFutureDate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if planDate > capDate {
		return nil, ErrPlanDateTooFar
	}

	if err := s.validateTaskOrder(ctx, userID, taskOrder); err != nil {
		return nil, err
	}

	plan, err := s.planRepo.FindByDate(ctx, userID, planDate)
	switch {
	case err == nil:
		plan.TaskOrder = taskOrder
		if notes != "" {
			plan.Notes = notes
		}
		if err := s.planRepo.Save(ctx, plan); err != nil {
			return nil, err
		}
		return plan, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		plan = &model.DailyPlan{
			UserID:    userID,
			PlanDate:  planDate,
			TaskOrder: taskOrder,
			Notes:     notes,
		}
		if err := s.planRepo.Create(ctx, plan); err != nil {
			return nil, err
		}
		return plan, nil
	default:
		return nil, fmt.Errorf("find plan: %w", err)
	}
}

// maxFutureDate is the latest plannable date: plan_date is an owner-local
// calendar date, so the seven-day cap counts from today on the owner's
// calendar, not UTC's.
func (s *PlanService) maxFutureDate(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return s.now().In(loc).AddDate(0, 0, maxPlanFutureDays).Format(planDateLayout), nil
}

func (s *PlanService) validateTaskOrder(ctx context.Context, userID string, taskOrder []string) error {
	if len(taskOrder) == 0 {
		return ErrEmptyTaskOrder
	}
	seen := make(map[string]bool, len(taskOrder))
	for _, id := range taskOrder {
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
		}
		seen[id] = true
	}

	tasks, err := s.taskRepo.FindByIDs(ctx, userID, taskOrder)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	found := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		found[t.ID] = t
	}
	for _, id := range taskOrder {
		task, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTaskNotOwned, id)
		}
		if task.Status == model.StatusCancelled {
			return fmt.Errorf("%w: %s", ErrCancelledTask, id)
		}
	}
	return nil
}

// ReorderPlan applies a set-preserving permutation to the plan's task order.
// Completion state already recorded for a task survives untouched.
func (s *PlanService) ReorderPlan(ctx context.Context, userID, planDate string, newOrder []string) (*model.DailyPlan, error) {
	plan, err := s.findPlan(ctx, userID, planDate)
	if err != nil {
		return nil, err
	}

	if !sameTaskSet(plan.TaskOrder, newOrder) {
		return nil, ErrTaskSetChanged
	}

	plan.TaskOrder = newOrder
	if err := s.planRepo.Save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func sameTaskSet(current model.TaskOrder, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	counts := make(map[string]int, len(current))
	for _, id := range current {
		counts[id]++
	}
	for _, id := range proposed {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

// SubmitReflection records per-task completion outcomes and the day's mood.
// Resubmission merges: exactly one completion row per (plan, task) pair,
// regardless of how many times the same payload arrives. Tasks omitted from
// the submission keep their current status.
func (s *PlanService) SubmitReflection(ctx context.Context, userID, planDate string, entries []CompletionEntry, notes string, mood *int) (*Reflection, error) {
	if mood != nil && (*mood < 1 || *mood > 5) {
		return nil, ErrInvalidMood
	}

	plan, err := s.findPlan(ctx, userID, planDate)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !plan.TaskOrder.Contains(entry.TaskID) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotInPlan, entry.TaskID)
		}
	}

	now := s.now()
	for _, entry := range entries {
		completion := &model.TaskCompletion{
			DailyPlanID:     plan.ID,
			TaskID:          entry.TaskID,
			PlannedPosition: plan.TaskOrder.Position(entry.TaskID),
			ActualCompleted: entry.Completed,
			ActualMinutes:   entry.ActualMinutes,
			SkippedReason:   entry.SkippedReason,
		}
		if entry.Completed {
			completedAt := now
			completion.CompletedAt = &completedAt
			completion.SkippedReason = ""
		}
		if err := s.planRepo.UpsertCompletion(ctx, completion); err != nil {
			return nil, err
		}
		if entry.Completed {
			if err := s.taskRepo.MarkCompleted(ctx, userID, entry.TaskID, now); err != nil {
				return nil, err
			}
		}
	}

	if notes != "" {
		plan.Notes = notes
	}
	if mood != nil {
		plan.Mood = mood
	}
	if err := s.planRepo.Save(ctx, plan); err != nil {
		return nil, err
	}

	return s.GetReflection(ctx, userID, planDate)
}

// GetPlan returns the plan and its tasks resolved in plan order.
func (s *PlanService) GetPlan(ctx context.Context, userID, planDate string) (*model.DailyPlan, []model.Task, error) {
	plan, err := s.findPlan(ctx, userID, planDate)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.tasksInOrder(ctx, userID, plan.TaskOrder)
	if err != nil {
		return nil, nil, err
	}
	return plan, tasks, nil
}

// ListPlans returns the user's plans for the last given number of days.
func (s *PlanService) ListPlans(ctx context.Context, userID string, days int) ([]model.DailyPlan, error) {
	if days <= 0 {
		days = 30
	}
	start := s.now().UTC().AddDate(0, 0, -days).Format(planDateLayout)
	return s.planRepo.ListSince(ctx, userID, start)
}

// Stats returns live completion progress for the date. An absent plan yields
// zero totals, not an error.
func (s *PlanService) Stats(ctx context.Context, userID, planDate string) (CompletionStats, error) {
	plan, err := s.planRepo.FindByDate(ctx, userID, planDate)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CompletionStats{}, nil
	}
	if err != nil {
		return CompletionStats{}, fmt.Errorf("find plan: %w", err)
	}

	tasks, err := s.taskRepo.FindByIDs(ctx, userID, plan.TaskOrder)
	if err != nil {
		return CompletionStats{}, fmt.Errorf("load tasks: %w", err)
	}
	stats := CompletionStats{Total: len(plan.TaskOrder)}
	for _, t := range tasks {
		if t.Status == model.StatusCompleted {
			stats.Completed++
		}
	}
	return stats, nil
}

// RemainingTasks returns the plan's unfinished tasks ordered by priority
// descending, then due date ascending with undated tasks last.
func (s *PlanService) RemainingTasks(ctx context.Context, userID, planDate string) ([]model.Task, error) {
	plan, err := s.planRepo.FindByDate(ctx, userID, planDate)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	tasks, err := s.taskRepo.FindByIDs(ctx, userID, plan.TaskOrder)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	var remaining []model.Task
	for _, t := range tasks {
		if t.Status == model.StatusCompleted || t.Status == model.StatusCancelled {
			continue
		}
		remaining = append(remaining, t)
	}

	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].Priority != remaining[j].Priority {
			return remaining[i].Priority > remaining[j].Priority
		}
		return dueBefore(remaining[i].DueDate, remaining[j].DueDate)
	})
	return remaining, nil
}

func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

// GetReflection returns the recorded reflection summary for the date.
func (s *PlanService) GetReflection(ctx context.Context, userID, planDate string) (*Reflection, error) {
	plan, err := s.findPlan(ctx, userID, planDate)
	if err != nil {
		return nil, err
	}
	completions, err := s.planRepo.ListCompletions(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	tasks, err := s.taskRepo.FindByIDs(ctx, userID, plan.TaskOrder)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	ref := &Reflection{
		PlanDate:   planDate,
		TotalTasks: len(plan.TaskOrder),
		Mood:       plan.Mood,
	}
	for _, t := range tasks {
		if t.EstimatedMinutes != nil {
			ref.TotalPlannedMinutes += *t.EstimatedMinutes
		}
	}
	for _, c := range completions {
		if c.ActualCompleted {
			ref.CompletedTasks++
		}
		if c.ActualMinutes != nil {
			ref.TotalActualMinutes += *c.ActualMinutes
		}
	}
	if ref.TotalTasks > 0 {
		ref.CompletionRate = float64(ref.CompletedTasks) / float64(ref.TotalTasks)
	}
	return ref, nil
}

func (s *PlanService) findPlan(ctx context.Context, userID, planDate string) (*model.DailyPlan, error) {
	if _, err := time.Parse(planDateLayout, planDate); err != nil {
		return nil, ErrInvalidPlanDate
	}
	plan, err := s.planRepo.FindByDate(ctx, userID, planDate)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

func (s *PlanService) tasksInOrder(ctx context.Context, userID string, order model.TaskOrder) ([]model.Task, error) {
	tasks, err := s.taskRepo.FindByIDs(ctx, userID, order)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	ordered := make([]model.Task, 0, len(order))
	for _, id := range order {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}
