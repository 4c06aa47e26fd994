package model

import "time"

// AlertDismissal is the last staleness count an author dismissed for a course.
type AlertDismissal struct {
	CourseKey   string `gorm:"primaryKey"`
	Count       int    `gorm:"not null"`
	DismissedAt time.Time
}

func (AlertDismissal) TableName() string {
	return "alert_dismissals"
}

// TaskHandle remembers the migration task submitted for a course so polling can resume.
type TaskHandle struct {
	CourseKey string `gorm:"primaryKey"`
	UUID      string `gorm:"not null"`
	CreatedAt time.Time
}

func (TaskHandle) TableName() string {
	return "task_handles"
}
