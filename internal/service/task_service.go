package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"taskplanner/internal/model"
	"taskplanner/internal/notify"
	"taskplanner/internal/recurrence"
	"taskplanner/internal/repository"
)

// TaskInput carries a create or update request. Pointer fields distinguish
// "absent" from a zero value. TagIDs nil leaves tags untouched on update; a
// non-nil empty slice clears them.
type TaskInput struct {
	Title       string
	Description string
	Notes       string
	Priority    string
	Status      string
	DueDate     *time.Time
	StartDate   *time.Time
	AllDay      *bool
	SortOrder   *int
	ListID      *uint
	ParentID    *uint
	TagIDs      []uint

	IsRecurring        *bool
	RecurrenceType     string
	RecurrenceInterval *int
	RecurrenceEndDate  *time.Time
	RecurrenceDays     []string
}

// TaskService owns the task lifecycle: create, update, complete and delete,
// with ownership checks, recurrence spawning and change events.
type TaskService struct {
	store    *repository.Store
	notifier notify.Notifier
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewTaskService(store *repository.Store, notifier notify.Notifier, log *slog.Logger, loc *time.Location) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{store: store, notifier: notifier, log: log, loc: loc, now: time.Now}
}

func (s *TaskService) CreateTask(ctx context.Context, ownerID uint, input TaskInput) (*TaskView, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}
	task := model.Task{
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		Notes:       input.Notes,
		Priority:    model.ParsePriority(input.Priority),
		Status:      model.StatusTodo,
		DueDate:     utc(input.DueDate),
		StartDate:   utc(input.StartDate),
		AllDay:      input.AllDay != nil && *input.AllDay,
		IsRecurring: input.IsRecurring != nil && *input.IsRecurring,
	}
	if st, ok := model.ParseStatus(input.Status); ok {
		task.Status = st
	}
	if task.Status == model.StatusCompleted {
		now := s.now().UTC()
		task.CompletedAt = &now
	}
	if input.SortOrder != nil {
		task.SortOrder = *input.SortOrder
	}
	task.RecurrenceType = model.ParseRecurrenceType(input.RecurrenceType)
	task.RecurrenceInterval = input.RecurrenceInterval
	task.RecurrenceEndDate = utc(input.RecurrenceEndDate)
	var err error
	if input.RecurrenceDays != nil {
		if task.RecurrenceDays, err = encodeDays(input.RecurrenceDays); err != nil {
			return nil, err
		}
	}
	if err := validateRecurrence(&task); err != nil {
		return nil, err
	}

	var view TaskView
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if input.ListID != nil {
			list, err := tx.Lists.FindOwned(ctx, ownerID, *input.ListID)
			if err != nil {
				return lookupErr(err, "task list", *input.ListID)
			}
			task.ListID = &list.ID
		}
		if input.ParentID != nil {
			if _, err := s.ownedTask(ctx, tx, ownerID, *input.ParentID); err != nil {
				return err
			}
			task.ParentID = input.ParentID
		}
		tags, err := s.resolveTags(ctx, tx, ownerID, input.TagIDs)
		if err != nil {
			return err
		}
		if err := tx.Tasks.Create(ctx, &task, tags); err != nil {
			return err
		}
		view, err = s.reload(ctx, tx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("task created", "task_id", view.ID, "owner_id", ownerID)
	s.publish(notify.ActionCreate, ownerID, view)
	return &view, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, ownerID, taskID uint, input TaskInput) (*TaskView, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}
	var days datatypes.JSON
	var err error
	if input.RecurrenceDays != nil {
		if days, err = encodeDays(input.RecurrenceDays); err != nil {
			return nil, err
		}
	}

	var view TaskView
	var successor *TaskView
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		task, err := s.ownedTask(ctx, tx, ownerID, taskID)
		if err != nil {
			return err
		}

		task.Title = input.Title
		task.Description = input.Description
		task.Notes = input.Notes
		task.Priority = model.ParsePriority(input.Priority)
		if st, ok := model.ParseStatus(input.Status); ok {
			task.Status = st
		}
		task.DueDate = utc(input.DueDate)
		task.StartDate = utc(input.StartDate)
		task.AllDay = input.AllDay != nil && *input.AllDay
		if input.SortOrder != nil {
			task.SortOrder = *input.SortOrder
		}
		if input.IsRecurring != nil {
			task.IsRecurring = *input.IsRecurring
		}
		if rt := model.ParseRecurrenceType(input.RecurrenceType); rt != "" {
			task.RecurrenceType = rt
		}
		if input.RecurrenceInterval != nil {
			task.RecurrenceInterval = input.RecurrenceInterval
		}
		if input.RecurrenceEndDate != nil {
			task.RecurrenceEndDate = utc(input.RecurrenceEndDate)
		}
		if days != nil {
			task.RecurrenceDays = days
		}
		if err := validateRecurrence(task); err != nil {
			return err
		}

		if input.ListID != nil {
			list, err := tx.Lists.FindOwned(ctx, ownerID, *input.ListID)
			if err != nil {
				return lookupErr(err, "task list", *input.ListID)
			}
			task.ListID = &list.ID
			task.List = list
		}
		if input.TagIDs != nil {
			tags, err := s.resolveTags(ctx, tx, ownerID, input.TagIDs)
			if err != nil {
				return err
			}
			if err := tx.Tasks.ReplaceTags(ctx, task, tags); err != nil {
				return err
			}
		}

		// completedAt follows the status; spawning fires only on the
		// not-completed -> completed edge.
		if task.Status == model.StatusCompleted {
			if task.CompletedAt == nil {
				now := s.now().UTC()
				task.CompletedAt = &now
				if task.IsRecurring {
					if successor, err = s.spawnNext(ctx, tx, task); err != nil {
						return err
					}
				}
			}
		} else {
			task.CompletedAt = nil
		}

		if err := tx.Tasks.Save(ctx, task); err != nil {
			return err
		}
		view, err = s.reload(ctx, tx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("task updated", "task_id", view.ID, "owner_id", ownerID, "status", view.Status)
	s.publish(notify.ActionUpdate, ownerID, view)
	if successor != nil {
		s.log.Info("recurring task spawned", "task_id", successor.ID, "from_task_id", view.ID, "due", successor.DueDate)
		s.publish(notify.ActionCreate, ownerID, *successor)
	}
	return &view, nil
}

// CompleteTask marks a task completed and keeps every other field as stored.
func (s *TaskService) CompleteTask(ctx context.Context, ownerID, taskID uint) (*TaskView, error) {
	current, err := s.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	return s.UpdateTask(ctx, ownerID, taskID, inputFromView(current, model.StatusCompleted))
}

// DeleteTask removes the task together with its subtasks, reminders and
// attachments.
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, taskID uint) error {
	var view TaskView
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		task, err := s.ownedTask(ctx, tx, ownerID, taskID)
		if err != nil {
			return err
		}
		if view, err = buildView(ctx, tx.Tasks, task, 0); err != nil {
			return err
		}
		ids, err := tx.Tasks.DescendantIDs(ctx, task.ID)
		if err != nil {
			return err
		}
		return tx.Tasks.DeleteCascade(ctx, append(ids, task.ID))
	})
	if err != nil {
		return err
	}

	s.log.Info("task deleted", "task_id", taskID, "owner_id", ownerID, "subtasks", len(view.Subtasks))
	s.publish(notify.ActionDelete, ownerID, view)
	return nil
}

func (s *TaskService) GetTask(ctx context.Context, ownerID, taskID uint) (*TaskView, error) {
	task, err := s.ownedTask(ctx, s.store, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	view, err := buildView(ctx, s.store.Tasks, task, 0)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetAllTasks returns the owner's top-level tasks in sort order.
func (s *TaskService) GetAllTasks(ctx context.Context, ownerID uint) ([]TaskView, error) {
	return s.views(ctx)(s.store.Tasks.ListRoots(ctx, ownerID))
}

func (s *TaskService) GetTasksByList(ctx context.Context, ownerID, listID uint) ([]TaskView, error) {
	return s.views(ctx)(s.store.Tasks.ListByList(ctx, ownerID, listID))
}

func (s *TaskService) GetTasksByTag(ctx context.Context, ownerID, tagID uint) ([]TaskView, error) {
	return s.views(ctx)(s.store.Tasks.ListByTag(ctx, ownerID, tagID))
}

func (s *TaskService) GetSubtasks(ctx context.Context, ownerID, parentID uint) ([]TaskView, error) {
	if _, err := s.ownedTask(ctx, s.store, ownerID, parentID); err != nil {
		return nil, err
	}
	return s.views(ctx)(s.store.Tasks.ListByParent(ctx, ownerID, parentID))
}

// GetTodayTasks returns tasks due in [start of local day, start of next day)
// in the owner's timezone.
func (s *TaskService) GetTodayTasks(ctx context.Context, ownerID uint) ([]TaskView, error) {
	loc := s.ownerLocation(ctx, s.store, ownerID)
	now := s.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return s.views(ctx)(s.store.Tasks.ListDueBetween(ctx, ownerID, start, start.AddDate(0, 0, 1)))
}

func (s *TaskService) GetOverdueTasks(ctx context.Context, ownerID uint) ([]TaskView, error) {
	return s.views(ctx)(s.store.Tasks.ListOverdue(ctx, ownerID, s.now()))
}

func (s *TaskService) SearchTasks(ctx context.Context, ownerID uint, query string) ([]TaskView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []TaskView{}, nil
	}
	return s.views(ctx)(s.store.Tasks.Search(ctx, ownerID, query))
}

func (s *TaskService) CountByList(ctx context.Context, ownerID, listID uint) (int64, error) {
	return s.store.Tasks.CountByList(ctx, ownerID, listID)
}

func (s *TaskService) views(ctx context.Context) func([]model.Task, error) ([]TaskView, error) {
	return func(tasks []model.Task, err error) ([]TaskView, error) {
		if err != nil {
			return nil, err
		}
		return buildViews(ctx, s.store.Tasks, tasks)
	}
}

// ownedTask checks existence first, then ownership. Both failures look the
// same to the caller.
func (s *TaskService) ownedTask(ctx context.Context, st *repository.Store, ownerID, taskID uint) (*model.Task, error) {
	task, err := st.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupErr(err, "task", taskID)
	}
	if task.OwnerID != ownerID {
		return nil, notFoundf("task %d", taskID)
	}
	return task, nil
}

// resolveTags is all-or-nothing: one missing tag fails the whole call.
func (s *TaskService) resolveTags(ctx context.Context, st *repository.Store, ownerID uint, ids []uint) ([]model.Tag, error) {
	tags := make([]model.Tag, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		tag, err := st.Tags.FindOwned(ctx, ownerID, id)
		if err != nil {
			return nil, lookupErr(err, "tag", id)
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

// spawnNext persists the successor of a completed recurring task. It
// returns nil when the series has ended.
func (s *TaskService) spawnNext(ctx context.Context, tx *repository.Store, task *model.Task) (*TaskView, error) {
	anchor := *task
	if anchor.DueDate != nil {
		due := anchor.DueDate.In(s.ownerLocation(ctx, tx, task.OwnerID))
		anchor.DueDate = &due
	}
	next, ok := recurrence.Next(&anchor)
	if !ok {
		s.log.Info("recurring series ended", "task_id", task.ID)
		return nil, nil
	}
	due := next.UTC()
	successor := model.Task{
		OwnerID:            task.OwnerID,
		ListID:             task.ListID,
		Title:              task.Title,
		Description:        task.Description,
		Notes:              task.Notes,
		Priority:           task.Priority,
		Status:             model.StatusTodo,
		DueDate:            &due,
		AllDay:             task.AllDay,
		IsRecurring:        true,
		RecurrenceType:     task.RecurrenceType,
		RecurrenceInterval: task.RecurrenceInterval,
		RecurrenceEndDate:  task.RecurrenceEndDate,
		RecurrenceDays:     append(datatypes.JSON(nil), task.RecurrenceDays...),
	}
	tags := append([]model.Tag(nil), task.Tags...)
	if err := tx.Tasks.Create(ctx, &successor, tags); err != nil {
		return nil, err
	}
	view, err := s.reload(ctx, tx, successor.ID)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *TaskService) reload(ctx context.Context, st *repository.Store, id uint) (TaskView, error) {
	task, err := st.Tasks.FindByID(ctx, id)
	if err != nil {
		return TaskView{}, fmt.Errorf("reload task %d: %w", id, err)
	}
	return buildView(ctx, st.Tasks, task, 0)
}

func (s *TaskService) ownerLocation(ctx context.Context, st *repository.Store, ownerID uint) *time.Location {
	owner, err := st.Owners.FindByID(ctx, ownerID)
	if err != nil || owner.Timezone == "" {
		return s.loc
	}
	loc, err := time.LoadLocation(owner.Timezone)
	if err != nil {
		return s.loc
	}
	return loc
}

// publish is best effort: the persisted state stands even if the event is lost.
func (s *TaskService) publish(action notify.Action, ownerID uint, view TaskView) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("change notifier panicked", "action", action, "task_id", view.ID, "panic", r)
		}
	}()
	if err := s.notifier.Publish(ownerID, notify.NewEvent(action, ownerID, view)); err != nil {
		s.log.Warn("publish task change", "action", action, "task_id", view.ID, "error", err)
	}
}

// validateTitle rejects blank titles. Accepted titles are stored as given.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalidf("title is required")
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return invalidf("title must not exceed %d characters", model.MaxTitleLength)
	}
	return nil
}

func validateRecurrence(task *model.Task) error {
	if task.RecurrenceInterval != nil && *task.RecurrenceInterval <= 0 {
		return invalidf("recurrence interval must be positive")
	}
	if !task.IsRecurring {
		return nil
	}
	if task.RecurrenceType == "" {
		return invalidf("recurring task needs a recurrence type")
	}
	if task.RecurrenceType == model.RecurCustom {
		if _, ok := recurrence.ParseDays(task.RecurrenceDays); !ok {
			return invalidf("custom recurrence needs a day set")
		}
	}
	return nil
}

func encodeDays(days []string) (datatypes.JSON, error) {
	raw, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("encode recurrence days: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := t.UTC()
	return &tt
}

func inputFromView(v *TaskView, status model.Status) TaskInput {
	tagIDs := make([]uint, 0, len(v.Tags))
	for _, t := range v.Tags {
		tagIDs = append(tagIDs, t.ID)
	}
	allDay, sortOrder, recurring := v.AllDay, v.SortOrder, v.IsRecurring
	return TaskInput{
		Title:              v.Title,
		Description:        v.Description,
		Notes:              v.Notes,
		Priority:           string(v.Priority),
		Status:             string(status),
		DueDate:            v.DueDate,
		StartDate:          v.StartDate,
		AllDay:             &allDay,
		SortOrder:          &sortOrder,
		ListID:             v.ListID,
		TagIDs:             tagIDs,
		IsRecurring:        &recurring,
		RecurrenceType:     string(v.RecurrenceType),
		RecurrenceInterval: v.RecurrenceInterval,
		RecurrenceEndDate:  v.RecurrenceEndDate,
		RecurrenceDays:     v.RecurrenceDays,
	}
}
