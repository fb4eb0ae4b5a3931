package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"planwise/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = model.StatusPending
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByIDs returns the owner's tasks matching the given IDs, in no particular
// order. Missing IDs are simply absent from the result.
func (r *TaskRepository) FindByIDs(ctx context.Context, userID string, taskIDs []string) ([]model.Task, error) {
	var tasks []model.Task
	if len(taskIDs) == 0 {
		return tasks, nil
	}
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, taskIDs).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkCompleted sets a terminal completed status with the given timestamp.
func (r *TaskRepository) MarkCompleted(ctx context.Context, userID, taskID string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id = ? AND status IN ?", userID, taskID, []string{model.StatusPending, model.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("complete task: %w", res.Error)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}
