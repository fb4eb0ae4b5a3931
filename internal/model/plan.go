package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskOrder is an ordered list of task IDs stored as a JSON column.
type TaskOrder []string

// Value implements driver.Valuer.
func (o TaskOrder) Value() (driver.Value, error) {
	if o == nil {
		o = TaskOrder{}
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal task order: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (o *TaskOrder) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*o = TaskOrder{}
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return fmt.Errorf("unsupported task order source type %T", src)
	}
}

// Contains reports whether the order references the given task.
func (o TaskOrder) Contains(taskID string) bool {
	for _, id := range o {
		if id == taskID {
			return true
		}
	}
	return false
}

// Position returns the zero-based index of taskID, or -1.
func (o TaskOrder) Position(taskID string) int {
	for i, id := range o {
		if id == taskID {
			return i
		}
	}
	return -1
}

// DailyPlan is one user's ordered plan for a single owner-local calendar date.
// Plans are upserted, never hard-deleted; the (user, date) pair is unique.
type DailyPlan struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"size:36;index:idx_plan_user_date,unique"`
	// PlanDate is the owner-local calendar date in YYYY-MM-DD form.
	PlanDate  string    `gorm:"size:10;index:idx_plan_user_date,unique"`
	TaskOrder TaskOrder `gorm:"type:text"`
	Notes     string
	Mood      *int // 1-5, set during reflection only
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskCompletion records the reflection outcome for one (plan, task) pair.
// Exactly one row exists per pair; resubmission updates in place.
type TaskCompletion struct {
	ID              string `gorm:"primaryKey;size:36"`
	DailyPlanID     string `gorm:"size:36;index:idx_completion_plan_task,unique"`
	TaskID          string `gorm:"size:36;index:idx_completion_plan_task,unique"`
	PlannedPosition int
	ActualCompleted bool
	ActualMinutes   *int
	CompletedAt     *time.Time
	SkippedReason   string `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
