package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"planwise/internal/model"
)

// PatternRepository handles detected user patterns.
type PatternRepository struct {
	db *gorm.DB
}

func NewPatternRepository(db *gorm.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

func (r *PatternRepository) ListByUser(ctx context.Context, userID string) ([]model.UserPattern, error) {
	var patterns []model.UserPattern
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&patterns).Error; err != nil {
		return nil, err
	}
	return patterns, nil
}

// ReplaceForUser swaps out all of a user's pattern rows in one transaction so
// readers never observe a mix of old and new cycles.
func (r *PatternRepository) ReplaceForUser(ctx context.Context, userID string, patterns []model.UserPattern) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.UserPattern{}).Error; err != nil {
			return fmt.Errorf("clear patterns: %w", err)
		}
		for i := range patterns {
			patterns[i].UserID = userID
			if patterns[i].ID == "" {
				patterns[i].ID = uuid.NewString()
			}
			if err := tx.Create(&patterns[i]).Error; err != nil {
				return fmt.Errorf("store pattern %s: %w", patterns[i].PatternType, err)
			}
		}
		return nil
	})
}
