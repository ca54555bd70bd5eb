package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/recurrence"
	"taskplanner/internal/repository"
)

// TaskView is the fully materialized task handed to callers and change
// events. Collections are never nil.
type TaskView struct {
	ID                 uint                 `json:"id"`
	OwnerID            uint                 `json:"ownerId"`
	Title              string               `json:"title"`
	Description        string               `json:"description"`
	Notes              string               `json:"notes"`
	Priority           model.Priority       `json:"priority"`
	Status             model.Status         `json:"status"`
	DueDate            *time.Time           `json:"dueDate,omitempty"`
	StartDate          *time.Time           `json:"startDate,omitempty"`
	CompletedAt        *time.Time           `json:"completedAt,omitempty"`
	AllDay             bool                 `json:"allDay"`
	SortOrder          int                  `json:"sortOrder"`
	IsRecurring        bool                 `json:"isRecurring"`
	RecurrenceType     model.RecurrenceType `json:"recurrenceType,omitempty"`
	RecurrenceInterval *int                 `json:"recurrenceInterval,omitempty"`
	RecurrenceEndDate  *time.Time           `json:"recurrenceEndDate,omitempty"`
	RecurrenceDays     []string             `json:"recurrenceDays,omitempty"`
	ListID             *uint                `json:"taskListId,omitempty"`
	ListName           string               `json:"taskListName,omitempty"`
	ParentID           *uint                `json:"parentTaskId,omitempty"`
	Tags               []TagView            `json:"tags"`
	Subtasks           []TaskView           `json:"subtasks"`
	Reminders          []ReminderView       `json:"reminders"`
	Attachments        []AttachmentView     `json:"attachments"`
	PomodoroCount      int                  `json:"pomodoroCount"`
	TimeSpent          int64                `json:"timeSpent"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

type TagView struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type ReminderView struct {
	ID       uint               `json:"id"`
	TaskID   uint               `json:"taskId"`
	RemindAt time.Time          `json:"remindAt"`
	Type     model.ReminderType `json:"type"`
	IsSent   bool               `json:"isSent"`
	SentAt   *time.Time         `json:"sentAt,omitempty"`
}

type AttachmentView struct {
	ID       uint   `json:"id"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// maxSubtaskDepth bounds recursion when materializing subtasks.
const maxSubtaskDepth = 32

func buildView(ctx context.Context, tasks *repository.TaskRepository, task *model.Task, depth int) (TaskView, error) {
	v := TaskView{
		ID:                 task.ID,
		OwnerID:            task.OwnerID,
		Title:              task.Title,
		Description:        task.Description,
		Notes:              task.Notes,
		Priority:           task.Priority,
		Status:             task.Status,
		DueDate:            task.DueDate,
		StartDate:          task.StartDate,
		CompletedAt:        task.CompletedAt,
		AllDay:             task.AllDay,
		SortOrder:          task.SortOrder,
		IsRecurring:        task.IsRecurring,
		RecurrenceType:     task.RecurrenceType,
		RecurrenceInterval: task.RecurrenceInterval,
		RecurrenceEndDate:  task.RecurrenceEndDate,
		ListID:             task.ListID,
		ParentID:           task.ParentID,
		Tags:               make([]TagView, 0, len(task.Tags)),
		Subtasks:           []TaskView{},
		Reminders:          make([]ReminderView, 0, len(task.Reminders)),
		Attachments:        make([]AttachmentView, 0, len(task.Attachments)),
		PomodoroCount:      task.PomodoroCount,
		TimeSpent:          task.TimeSpent,
		CreatedAt:          task.CreatedAt,
		UpdatedAt:          task.UpdatedAt,
	}
	if len(task.RecurrenceDays) > 0 {
		if days, ok := recurrence.ParseDays(task.RecurrenceDays); ok {
			v.RecurrenceDays = recurrence.DayCodes(days)
		} else if err := json.Unmarshal(task.RecurrenceDays, &v.RecurrenceDays); err != nil {
			return TaskView{}, fmt.Errorf("decode recurrence days of task %d: %w", task.ID, err)
		}
	}
	if task.List != nil {
		v.ListName = task.List.Name
	}
	for _, t := range task.Tags {
		v.Tags = append(v.Tags, TagView{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	for _, r := range task.Reminders {
		v.Reminders = append(v.Reminders, reminderView(r))
	}
	for _, a := range task.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{
			ID: a.ID, FileName: a.FileName, FileURL: a.FileURL, FileType: a.FileType, FileSize: a.FileSize,
		})
	}

	if depth >= maxSubtaskDepth || task.ID == 0 {
		return v, nil
	}
	children, err := tasks.ListByParent(ctx, task.OwnerID, task.ID)
	if err != nil {
		return TaskView{}, err
	}
	for i := range children {
		child, err := buildView(ctx, tasks, &children[i], depth+1)
		if err != nil {
			return TaskView{}, err
		}
		v.Subtasks = append(v.Subtasks, child)
	}
	return v, nil
}

func buildViews(ctx context.Context, tasks *repository.TaskRepository, list []model.Task) ([]TaskView, error) {
	out := make([]TaskView, 0, len(list))
	for i := range list {
		v, err := buildView(ctx, tasks, &list[i], 0)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func reminderView(r model.Reminder) ReminderView {
	return ReminderView{ID: r.ID, TaskID: r.TaskID, RemindAt: r.RemindAt, Type: r.Type, IsSent: r.IsSent, SentAt: r.SentAt}
}
