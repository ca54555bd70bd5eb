package model

import "time"

// Owner is the identity that scopes every task, list, tag and reminder.
type Owner struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID *int64 `gorm:"uniqueIndex"`
	Email      string
	Name       string
	PushToken  string
	Timezone   string `gorm:"default:UTC"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
