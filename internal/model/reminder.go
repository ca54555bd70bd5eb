package model

import "time"

type ReminderType string

const (
	ReminderNotification ReminderType = "NOTIFICATION"
	ReminderEmail        ReminderType = "EMAIL"
	ReminderBoth         ReminderType = "BOTH"
)

// ParseReminderType falls back to NOTIFICATION for unknown values.
func ParseReminderType(raw string) ReminderType {
	switch t := ReminderType(raw); t {
	case ReminderNotification, ReminderEmail, ReminderBoth:
		return t
	}
	return ReminderNotification
}

// Reminder is a point-in-time trigger attached to a task. IsSent never goes
// back to false once set.
type Reminder struct {
	ID        uint         `gorm:"primaryKey"`
	TaskID    uint         `gorm:"index;not null"`
	RemindAt  time.Time    `gorm:"index;not null"`
	Type      ReminderType `gorm:"not null;default:NOTIFICATION"`
	IsSent    bool         `gorm:"index;default:false"`
	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Task *Task `gorm:"foreignKey:TaskID"`
}

// Attachment is a file reference owned by exactly one task.
type Attachment struct {
	ID        uint   `gorm:"primaryKey"`
	TaskID    uint   `gorm:"index;not null"`
	FileName  string `gorm:"not null"`
	FileURL   string `gorm:"not null"`
	FileType  string `gorm:"not null"`
	FileSize  int64
	CreatedAt time.Time
}
