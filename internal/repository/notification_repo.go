package repository

import (
	"context"

	"tenapay/internal/model"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, note *model.Notification) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *NotificationRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	var notes []*model.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notes).Error
	return notes, err
}

// MarkRead flips the read flag, scoped to the owner so one user cannot touch
// another's notifications. Returns the number of rows updated.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, noteID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", noteID, userID).
		Update("read", true)
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, noteID int64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, userID).
		Delete(&model.Notification{}).Error
}
