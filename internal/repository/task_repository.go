package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskplanner/internal/model"
)

// TaskRepository handles CRUD and owner-scoped queries for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the task row and links the given tags.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task, tags []model.Tag) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if len(tags) == 0 {
		task.Tags = []model.Tag{}
		return nil
	}
	return r.ReplaceTags(ctx, task, tags)
}

// Save writes every scalar column of the task. Associations are untouched.
func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// ReplaceTags swaps the task's tag links for exactly the given set.
func (r *TaskRepository) ReplaceTags(ctx context.Context, task *model.Task, tags []model.Tag) error {
	assoc := r.db.WithContext(ctx).Model(task).Association("Tags")
	var err error
	if len(tags) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(tags)
	}
	if err != nil {
		return fmt.Errorf("replace task tags: %w", err)
	}
	task.Tags = append([]model.Tag{}, tags...)
	return nil
}

func (r *TaskRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("List").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name ASC") }).
		Preload("Reminders", func(db *gorm.DB) *gorm.DB { return db.Order("remind_at ASC") }).
		Preload("Attachments")
}

// FindByID loads a task regardless of owner. Callers check ownership.
func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.withRelations(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

func (r *TaskRepository) find(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]model.Task, error) {
	var tasks []model.Task
	if err := scope(r.withRelations(ctx)).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListRoots returns the owner's top-level tasks.
func (r *TaskRepository) ListRoots(ctx context.Context, ownerID uint) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND parent_id IS NULL", ownerID).Order("sort_order ASC, id ASC")
	})
}

func (r *TaskRepository) ListByList(ctx context.Context, ownerID, listID uint) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND list_id = ?", ownerID, listID).Order("sort_order ASC, id ASC")
	})
}

func (r *TaskRepository) ListByParent(ctx context.Context, ownerID, parentID uint) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND parent_id = ?", ownerID, parentID).Order("sort_order ASC, id ASC")
	})
}

func (r *TaskRepository) ListByTag(ctx context.Context, ownerID, tagID uint) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND id IN (?)", ownerID,
			r.db.Table("task_tags").Select("task_id").Where("tag_id = ?", tagID)).
			Order("sort_order ASC, id ASC")
	})
}

// ListDueBetween returns tasks due in the half-open interval [start, end).
func (r *TaskRepository) ListDueBetween(ctx context.Context, ownerID uint, start, end time.Time) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND due_date >= ? AND due_date < ?", ownerID, start.UTC(), end.UTC()).
			Order("due_date ASC, id ASC")
	})
}

// ListOverdue returns unfinished tasks whose due date has passed.
func (r *TaskRepository) ListOverdue(ctx context.Context, ownerID uint, now time.Time) ([]model.Task, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND status <> ? AND due_date < ?", ownerID, model.StatusCompleted, now.UTC()).
			Order("due_date ASC, id ASC")
	})
}

// Search matches query case-insensitively against title, description and notes.
func (r *TaskRepository) Search(ctx context.Context, ownerID uint, query string) ([]model.Task, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID).
			Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(notes) LIKE ? ESCAPE '\'`,
				pattern, pattern, pattern).
			Order("sort_order ASC, id ASC")
	})
}

func (r *TaskRepository) CountByList(ctx context.Context, ownerID, listID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("owner_id = ? AND list_id = ?", ownerID, listID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// DescendantIDs collects the ids of every task below id, breadth first.
func (r *TaskRepository) DescendantIDs(ctx context.Context, id uint) ([]uint, error) {
	seen := map[uint]bool{id: true}
	var out []uint
	frontier := []uint{id}
	for len(frontier) > 0 {
		var children []uint
		if err := r.db.WithContext(ctx).Model(&model.Task{}).
			Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return nil, fmt.Errorf("collect subtasks: %w", err)
		}
		frontier = frontier[:0]
		for _, c := range children {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			frontier = append(frontier, c)
		}
	}
	return out, nil
}

// DeleteCascade removes the tasks along with their reminders, attachments
// and tag links.
func (r *TaskRepository) DeleteCascade(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id IN ?", ids).Delete(&model.Reminder{}).Error; err != nil {
		return fmt.Errorf("delete reminders: %w", err)
	}
	if err := db.Where("task_id IN ?", ids).Delete(&model.Attachment{}).Error; err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	if err := db.Exec("DELETE FROM task_tags WHERE task_id IN ?", ids).Error; err != nil {
		return fmt.Errorf("delete task tags: %w", err)
	}
	if err := db.Where("id IN ?", ids).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
