package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"planwise/internal/model"
)

// NotificationRepository handles preferences, push tokens and delivery audits.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) FindPreference(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

// SavePreference upserts the per-user preference singleton.
func (r *NotificationRepository) SavePreference(ctx context.Context, pref *model.NotificationPreference) error {
	db := r.db.WithContext(ctx)
	var existing model.NotificationPreference
	err := db.Where("user_id = ?", pref.UserID).First(&existing).Error
	switch {
	case err == nil:
		pref.ID = existing.ID
		pref.CreatedAt = existing.CreatedAt
		if err := db.Save(pref).Error; err != nil {
			return fmt.Errorf("update preference: %w", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		if pref.ID == "" {
			pref.ID = uuid.NewString()
		}
		if err := db.Create(pref).Error; err != nil {
			return fmt.Errorf("create preference: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find preference: %w", err)
	}
}

func (r *NotificationRepository) ListPushTokens(ctx context.Context, userID string) ([]model.PushToken, error) {
	var tokens []model.PushToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *NotificationRepository) AddPushToken(ctx context.Context, token *model.PushToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("create push token: %w", err)
	}
	return nil
}

// RemovePushToken drops a registration the push backend reported as gone.
func (r *NotificationRepository) RemovePushToken(ctx context.Context, userID, token string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).
		Delete(&model.PushToken{}).Error; err != nil {
		return fmt.Errorf("remove push token: %w", err)
	}
	return nil
}

func (r *NotificationRepository) RecordAudit(ctx context.Context, audit *model.NotificationAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(audit).Error; err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListAudits(ctx context.Context, userID, localDate string) ([]model.NotificationAudit, error) {
	var audits []model.NotificationAudit
	if err := r.db.WithContext(ctx).Where("user_id = ? AND local_date = ?", userID, localDate).
		Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}
