package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"taskplanner/internal/model"
)

// TagRepository manages tags.
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) Create(ctx context.Context, tag *model.Tag) error {
	if err := r.db.WithContext(ctx).Create(tag).Error; err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// FindOwned resolves a tag only when it belongs to ownerID.
func (r *TagRepository) FindOwned(ctx context.Context, ownerID, id uint) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&tag).Error; err != nil {
		return nil, notFound(err)
	}
	return &tag, nil
}

func (r *TagRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Tag, error) {
	var tags []model.Tag
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}
