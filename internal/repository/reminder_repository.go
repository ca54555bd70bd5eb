package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskplanner/internal/model"
)

// ReminderRepository is the reminder half of the task store.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	if err := r.db.WithContext(ctx).Omit("Task").Create(reminder).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// FindByID loads the reminder with its task so callers can check ownership.
func (r *ReminderRepository) FindByID(ctx context.Context, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := r.db.WithContext(ctx).Preload("Task").First(&reminder, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &reminder, nil
}

func (r *ReminderRepository) ListByTask(ctx context.Context, taskID uint) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("remind_at ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Reminder{}, id).Error; err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// FindPending returns unsent reminders due at or before now, oldest first,
// with their task loaded.
func (r *ReminderRepository) FindPending(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Preload("Task").
		Where("is_sent = ? AND remind_at <= ?", false, now.UTC()).
		Order("remind_at ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("find pending reminders: %w", err)
	}
	return reminders, nil
}

// MarkSent flips a pending reminder to sent. It reports false when the
// reminder was already sent (or is gone), leaving sent_at untouched.
func (r *ReminderRepository) MarkSent(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND is_sent = ?", id, false).
		Updates(map[string]interface{}{"is_sent": true, "sent_at": at.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
