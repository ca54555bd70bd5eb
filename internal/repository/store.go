package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories over one connection or transaction.
type Store struct {
	db *gorm.DB

	Owners    *OwnerRepository
	Lists     *ListRepository
	Tags      *TagRepository
	Tasks     *TaskRepository
	Reminders *ReminderRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Owners:    NewOwnerRepository(db),
		Lists:     NewListRepository(db),
		Tags:      NewTagRepository(db),
		Tasks:     NewTaskRepository(db),
		Reminders: NewReminderRepository(db),
	}
}

// Transaction runs fn against a Store bound to a single transaction. Any
// error returned by fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// DB exposes the underlying handle for ad-hoc maintenance queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}
