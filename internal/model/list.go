package model

import "time"

// TaskList groups tasks of one owner (inbox, work, groceries, etc.).
type TaskList struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"index"`
	Name      string `gorm:"not null"`
	Color     string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag labels tasks of one owner.
type Tag struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"index"`
	Name      string `gorm:"not null"`
	Color     string
	CreatedAt time.Time
}
