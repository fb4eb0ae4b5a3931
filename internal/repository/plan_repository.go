package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"planwise/internal/model"
)

// PlanRepository handles daily plans and their task completions.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(ctx context.Context, plan *model.DailyPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) Save(ctx context.Context, plan *model.DailyPlan) error {
	if err := r.db.WithContext(ctx).Save(plan).Error; err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) FindByDate(ctx context.Context, userID, planDate string) (*model.DailyPlan, error) {
	var plan model.DailyPlan
	if err := r.db.WithContext(ctx).Where("user_id = ? AND plan_date = ?", userID, planDate).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListSince returns the user's plans from startDate onward, newest first.
func (r *PlanRepository) ListSince(ctx context.Context, userID, startDate string) ([]model.DailyPlan, error) {
	var plans []model.DailyPlan
	if err := r.db.WithContext(ctx).Where("user_id = ? AND plan_date >= ?", userID, startDate).
		Order("plan_date DESC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *PlanRepository) ListCompletions(ctx context.Context, planID string) ([]model.TaskCompletion, error) {
	var completions []model.TaskCompletion
	if err := r.db.WithContext(ctx).Where("daily_plan_id = ?", planID).Find(&completions).Error; err != nil {
		return nil, err
	}
	return completions, nil
}

// UpsertCompletion creates or updates the single completion row for a
// (plan, task) pair. Resubmission merges rather than duplicating.
func (r *PlanRepository) UpsertCompletion(ctx context.Context, completion *model.TaskCompletion) error {
	db := r.db.WithContext(ctx)
	var existing model.TaskCompletion
	err := db.Where("daily_plan_id = ? AND task_id = ?", completion.DailyPlanID, completion.TaskID).
		First(&existing).Error
	switch {
	case err == nil:
		completion.ID = existing.ID
		completion.CreatedAt = existing.CreatedAt
		if err := db.Save(completion).Error; err != nil {
			return fmt.Errorf("update completion: %w", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		if completion.ID == "" {
			completion.ID = uuid.NewString()
		}
		if err := db.Create(completion).Error; err != nil {
			return fmt.Errorf("create completion: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find completion: %w", err)
	}
}

// CompletionHistory is one reflection row joined with its plan date and the
// task's category and estimate, used by pattern detection.
type CompletionHistory struct {
	PlanDate         string
	PlannedPosition  int
	ActualCompleted  bool
	ActualMinutes    *int
	EstimatedMinutes *int
	Category         string
}

// ListCompletionHistory returns reflection rows for the user's plans dated on
// or after startDate.
func (r *PlanRepository) ListCompletionHistory(ctx context.Context, userID, startDate string) ([]CompletionHistory, error) {
	var rows []CompletionHistory
	err := r.db.WithContext(ctx).
		Table("task_completions").
		Select("daily_plans.plan_date AS plan_date, task_completions.planned_position, task_completions.actual_completed, task_completions.actual_minutes, tasks.estimated_minutes, tasks.category").
		Joins("JOIN daily_plans ON daily_plans.id = task_completions.daily_plan_id").
		Joins("JOIN tasks ON tasks.id = task_completions.task_id").
		Where("daily_plans.user_id = ? AND daily_plans.plan_date >= ?", userID, startDate).
		Order("daily_plans.plan_date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
