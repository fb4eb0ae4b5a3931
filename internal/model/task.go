package model

import "time"

// TaskStatus values. Completed and cancelled are terminal; a finished task is
// never reactivated, it is recreated.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Priority range for tasks.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)

// Task represents a single item in the planner.
type Task struct {
	ID               string `gorm:"primaryKey;size:36"`
	UserID           string `gorm:"index;size:36"`
	Title            string `gorm:"size:500"`
	Description      string
	Priority         int `gorm:"default:2"`
	EstimatedMinutes *int
	EnergyLevel      *int   // 1=low, 2=medium, 3=high
	Category         string `gorm:"size:100"`
	Status           string `gorm:"size:20;default:pending;index"`
	DueDate          *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanTransitionTo reports whether the status change is allowed:
// pending -> in_progress -> completed, or any non-terminal state -> cancelled.
func (t Task) CanTransitionTo(next string) bool {
	switch t.Status {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// IsTerminal reports whether the task can no longer change state.
func (t Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}
