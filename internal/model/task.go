package model

import (
	"time"

	"gorm.io/datatypes"
)

type Priority string

const (
	PriorityNone   Priority = "NONE"
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority falls back to NONE for unknown values.
func ParsePriority(raw string) Priority {
	switch p := Priority(raw); p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return p
	}
	return PriorityNone
}

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// ParseStatus reports false for unknown values so callers can pick their own fallback.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return s, true
	}
	return "", false
}

type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "DAILY"
	RecurWeekly  RecurrenceType = "WEEKLY"
	RecurMonthly RecurrenceType = "MONTHLY"
	RecurYearly  RecurrenceType = "YEARLY"
	RecurCustom  RecurrenceType = "CUSTOM"
)

// ParseRecurrenceType returns "" for unknown values.
func ParseRecurrenceType(raw string) RecurrenceType {
	switch r := RecurrenceType(raw); r {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly, RecurCustom:
		return r
	}
	return ""
}

const MaxTitleLength = 500

// Task represents a single item in the planner. Parent/child links are kept
// as ids only; subtasks are loaded by query.
type Task struct {
	ID          uint       `gorm:"primaryKey"`
	OwnerID     uint       `gorm:"index;not null"`
	ListID      *uint      `gorm:"index"`
	ParentID    *uint      `gorm:"index"`
	Title       string     `gorm:"size:500;not null"`
	Description string     `gorm:"type:text"`
	Notes       string     `gorm:"type:text"`
	Priority    Priority   `gorm:"not null;default:NONE"`
	Status      Status     `gorm:"index;not null;default:TODO"`
	DueDate     *time.Time `gorm:"index"`
	StartDate   *time.Time
	CompletedAt *time.Time
	AllDay      bool `gorm:"default:false"`
	SortOrder   int  `gorm:"default:0"`

	IsRecurring        bool `gorm:"default:false"`
	RecurrenceType     RecurrenceType
	RecurrenceInterval *int
	RecurrenceEndDate  *time.Time
	RecurrenceDays     datatypes.JSON

	PomodoroCount int   `gorm:"default:0"`
	TimeSpent     int64 `gorm:"default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	List        *TaskList    `gorm:"foreignKey:ListID"`
	Tags        []Tag        `gorm:"many2many:task_tags"`
	Reminders   []Reminder   `gorm:"foreignKey:TaskID"`
	Attachments []Attachment `gorm:"foreignKey:TaskID"`
}

// Interval returns the recurrence interval, defaulting to 1.
func (t *Task) Interval() int {
	if t.RecurrenceInterval == nil || *t.RecurrenceInterval <= 0 {
		return 1
	}
	return *t.RecurrenceInterval
}
