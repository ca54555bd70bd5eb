package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"taskplanner/internal/model"
)

// ListRepository manages task lists.
type ListRepository struct {
	db *gorm.DB
}

func NewListRepository(db *gorm.DB) *ListRepository {
	return &ListRepository{db: db}
}

func (r *ListRepository) Create(ctx context.Context, list *model.TaskList) error {
	if err := r.db.WithContext(ctx).Create(list).Error; err != nil {
		return fmt.Errorf("create list: %w", err)
	}
	return nil
}

// FindOwned resolves a list only when it belongs to ownerID.
func (r *ListRepository) FindOwned(ctx context.Context, ownerID, id uint) (*model.TaskList, error) {
	var list model.TaskList
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&list).Error; err != nil {
		return nil, notFound(err)
	}
	return &list, nil
}

func (r *ListRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.TaskList, error) {
	var lists []model.TaskList
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("sort_order ASC, name ASC").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}
