package model

import "time"

// Course is a downstream context known to the backend.
type Course struct {
	Key       string    `json:"key" gorm:"primaryKey;column:course_key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created"`
}

func (Course) TableName() string {
	return "courses"
}
