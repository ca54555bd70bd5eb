package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"taskplanner/internal/model"
)

// OwnerRepository handles CRUD for owners.
type OwnerRepository struct {
	db *gorm.DB
}

func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

func (r *OwnerRepository) Create(ctx context.Context, owner *model.Owner) error {
	if err := r.db.WithContext(ctx).Create(owner).Error; err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

// UpsertFromTelegram finds or creates an owner based on the Telegram id. The
// chat id becomes the push token so reminders reach the same chat.
func (r *OwnerRepository) UpsertFromTelegram(ctx context.Context, telegramID, chatID int64, name string) (*model.Owner, error) {
	var owner model.Owner
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&owner).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"name":       name,
			"push_token": strconv.FormatInt(chatID, 10),
		}
		if err := db.Model(&owner).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update owner: %w", err)
		}
		return &owner, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		owner = model.Owner{
			TelegramID: &telegramID,
			Name:       name,
			PushToken:  strconv.FormatInt(chatID, 10),
			Timezone:   "UTC",
		}
		if err := db.Create(&owner).Error; err != nil {
			return nil, fmt.Errorf("create owner: %w", err)
		}
		return &owner, nil
	default:
		return nil, fmt.Errorf("find owner: %w", err)
	}
}

func (r *OwnerRepository) FindByID(ctx context.Context, id uint) (*model.Owner, error) {
	var owner model.Owner
	if err := r.db.WithContext(ctx).First(&owner, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &owner, nil
}

// FindByIDs returns the owners keyed by id; missing ids are simply absent.
func (r *OwnerRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.Owner, error) {
	out := make(map[uint]model.Owner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var owners []model.Owner
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&owners).Error; err != nil {
		return nil, fmt.Errorf("find owners: %w", err)
	}
	for _, o := range owners {
		out[o.ID] = o
	}
	return out, nil
}

func (r *OwnerRepository) SetTimezone(ctx context.Context, id uint, tz string) error {
	return r.setColumn(ctx, id, "timezone", tz)
}

// SetEmail stores the address email reminders are sent to. An empty address
// turns the email channel off for the owner.
func (r *OwnerRepository) SetEmail(ctx context.Context, id uint, email string) error {
	return r.setColumn(ctx, id, "email", email)
}

func (r *OwnerRepository) setColumn(ctx context.Context, id uint, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&model.Owner{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update owner %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
