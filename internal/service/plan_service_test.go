package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"planwise/internal/model"
	"planwise/internal/repository"
)

func newPlanService(t *testing.T) (*PlanService, *repository.PlanRepository, *repository.TaskRepository, *model.User) {
	t.Helper()
	db := newTestDB(t)
	planRepo := repository.NewPlanRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	user := seedUser(t, db, "UTC")
	svc := NewPlanService(planRepo, taskRepo, userRepo)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, planRepo, taskRepo, user
}

func seedTasks(t *testing.T, svc *PlanService, userID string, titles ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		task := &model.Task{UserID: userID, Title: title, Priority: model.PriorityMedium, Status: model.StatusPending}
		if err := svc.taskRepo.Create(context.Background(), task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		ids = append(ids, task.ID)
	}
	return ids
}

func TestUpsertPlanValidation(t *testing.T) {
	svc, _, taskRepo, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "write report", "review PR")

	cancelled := &model.Task{UserID: user.ID, Title: "dropped", Status: model.StatusCancelled}
	if err := taskRepo.Create(ctx, cancelled); err != nil {
		t.Fatalf("create cancelled task: %v", err)
	}

	cases := []struct {
		name    string
		date    string
		order   []string
		wantErr error
	}{
		{"bad date", "2026/03/10", ids, ErrInvalidPlanDate},
		{"too far ahead", "2026-03-20", ids, ErrPlanDateTooFar},
		{"empty order", "2026-03-10", nil, ErrEmptyTaskOrder},
		{"duplicate task", "2026-03-10", []string{ids[0], ids[0]}, ErrDuplicateTask},
		{"unknown task", "2026-03-10", []string{ids[0], "nope"}, ErrTaskNotOwned},
		{"cancelled task", "2026-03-10", []string{ids[0], cancelled.ID}, ErrCancelledTask},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertPlan(ctx, user.ID, tc.date, tc.order, "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Rejections leave no plan behind.
	if _, _, err := svc.GetPlan(ctx, user.ID, "2026-03-10"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected no plan after rejected upserts, got %v", err)
	}
}

func TestUpsertPlanFutureCapUsesOwnerCalendar(t *testing.T) {
	db := newTestDB(t)
	planRepo := repository.NewPlanRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	user := seedUser(t, db, "Pacific/Kiritimati") // UTC+14
	svc := NewPlanService(planRepo, taskRepo, userRepo)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "pack bags")

	// 12:00 UTC on March 10 is already March 11 in Kiritimati, so the
	// owner's seven-day horizon reaches March 18.
	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-18", ids, ""); err != nil {
		t.Fatalf("date inside the owner-local horizon rejected: %v", err)
	}
	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-19", ids, ""); !errors.Is(err, ErrPlanDateTooFar) {
		t.Fatalf("got %v, want ErrPlanDateTooFar", err)
	}
}

func TestUpsertPlanReplacesOrder(t *testing.T) {
	svc, _, _, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "a", "b", "c")

	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids[:2], "first draft"); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	plan, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if len(plan.TaskOrder) != 3 {
		t.Fatalf("got %d tasks, want 3", len(plan.TaskOrder))
	}
	if plan.Notes != "first draft" {
		t.Fatalf("empty notes overwrote existing notes: %q", plan.Notes)
	}
}

func TestReorderPreservesCompletionState(t *testing.T) {
	svc, planRepo, _, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "A", "B", "C", "D", "E")

	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", []CompletionEntry{
		{TaskID: ids[1], Completed: true, ActualMinutes: intPtr(25)},
	}, "", nil); err != nil {
		t.Fatalf("reflect: %v", err)
	}

	newOrder := []string{ids[4], ids[0], ids[2], ids[3], ids[1]}
	plan, err := svc.ReorderPlan(ctx, user.ID, "2026-03-10", newOrder)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	for i, id := range newOrder {
		if plan.TaskOrder[i] != id {
			t.Fatalf("position %d: got %s, want %s", i, plan.TaskOrder[i], id)
		}
	}

	completions, err := planRepo.ListCompletions(ctx, plan.ID)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(completions))
	}
	if completions[0].TaskID != ids[1] || !completions[0].ActualCompleted {
		t.Fatalf("completion for B lost after reorder: %+v", completions[0])
	}

	stats, err := svc.Stats(ctx, user.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 1 || stats.Total != 5 {
		t.Fatalf("got %d/%d, want 1/5", stats.Completed, stats.Total)
	}
}

func TestReorderRejectsTaskSetChange(t *testing.T) {
	svc, _, _, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "a", "b", "c")
	extra := seedTasks(t, svc, user.ID, "d")

	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cases := [][]string{
		{ids[0], ids[1]},                   // removal
		{ids[0], ids[1], ids[2], extra[0]}, // addition
		{ids[0], ids[1], extra[0]},         // substitution
		{ids[0], ids[0], ids[1]},           // duplicate
	}
	for _, order := range cases {
		if _, err := svc.ReorderPlan(ctx, user.ID, "2026-03-10", order); !errors.Is(err, ErrTaskSetChanged) {
			t.Fatalf("order %v: got %v, want ErrTaskSetChanged", order, err)
		}
	}
}

func TestReflectionResubmissionMerges(t *testing.T) {
	svc, planRepo, _, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "a", "b")

	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries := []CompletionEntry{
		{TaskID: ids[0], Completed: true, ActualMinutes: intPtr(30)},
		{TaskID: ids[1], Completed: false, SkippedReason: "no time"},
	}
	mood := 4
	first, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", entries, "good day", &mood)
	if err != nil {
		t.Fatalf("first reflection: %v", err)
	}
	second, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", entries, "good day", &mood)
	if err != nil {
		t.Fatalf("second reflection: %v", err)
	}

	if first.CompletedTasks != 1 || second.CompletedTasks != 1 {
		t.Fatalf("completed counts: first %d, second %d, want 1", first.CompletedTasks, second.CompletedTasks)
	}
	if second.TotalActualMinutes != 30 {
		t.Fatalf("actual minutes doubled on resubmit: %d", second.TotalActualMinutes)
	}

	plan, err := planRepo.FindByDate(ctx, user.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("find plan: %v", err)
	}
	completions, err := planRepo.ListCompletions(ctx, plan.ID)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 2 {
		t.Fatalf("got %d completion rows, want exactly one per task", len(completions))
	}
}

func TestReflectionRejectsBadInput(t *testing.T) {
	svc, _, _, user := newPlanService(t)
	ctx := context.Background()
	ids := seedTasks(t, svc, user.ID, "a")
	outsider := seedTasks(t, svc, user.ID, "not planned")

	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", ids, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	badMood := 6
	if _, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", nil, "", &badMood); !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("got %v, want ErrInvalidMood", err)
	}
	entries := []CompletionEntry{{TaskID: outsider[0], Completed: true}}
	if _, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", entries, "", nil); !errors.Is(err, ErrTaskNotInPlan) {
		t.Fatalf("got %v, want ErrTaskNotInPlan", err)
	}
}

func TestStatsAbsentPlan(t *testing.T) {
	svc, _, _, user := newPlanService(t)

	stats, err := svc.Stats(context.Background(), user.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 || stats.Completed != 0 || stats.Ratio() != 0 {
		t.Fatalf("absent plan should yield zero stats, got %+v", stats)
	}
}

func TestRemainingTasksOrdering(t *testing.T) {
	svc, _, taskRepo, user := newPlanService(t)
	ctx := context.Background()

	soon := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	later := soon.AddDate(0, 0, 2)

	urgent := &model.Task{UserID: user.ID, Title: "urgent", Priority: model.PriorityUrgent, Status: model.StatusPending}
	highLater := &model.Task{UserID: user.ID, Title: "high later", Priority: model.PriorityHigh, DueDate: timePtr(later), Status: model.StatusPending}
	highSoon := &model.Task{UserID: user.ID, Title: "high soon", Priority: model.PriorityHigh, DueDate: timePtr(soon), Status: model.StatusPending}
	done := &model.Task{UserID: user.ID, Title: "done", Priority: model.PriorityUrgent, Status: model.StatusPending}
	for _, task := range []*model.Task{urgent, highLater, highSoon, done} {
		if err := taskRepo.Create(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	order := []string{done.ID, highLater.ID, urgent.ID, highSoon.ID}
	if _, err := svc.UpsertPlan(ctx, user.ID, "2026-03-10", order, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.SubmitReflection(ctx, user.ID, "2026-03-10", []CompletionEntry{{TaskID: done.ID, Completed: true}}, "", nil); err != nil {
		t.Fatalf("reflect: %v", err)
	}

	remaining, err := svc.RemainingTasks(ctx, user.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	want := []string{urgent.ID, highSoon.ID, highLater.ID}
	if len(remaining) != len(want) {
		t.Fatalf("got %d remaining, want %d", len(remaining), len(want))
	}
	for i, id := range want {
		if remaining[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, remaining[i].Title, id)
		}
	}
}
