package model

import "time"

type TaskState string

const (
	TaskStatePending    TaskState = "Pending"
	TaskStateInProgress TaskState = "InProgress"
	TaskStateSucceeded  TaskState = "Succeeded"
	TaskStateFailed     TaskState = "Failed"
	TaskStateCancelled  TaskState = "Cancelled"
)

// IsTerminal reports whether no further transitions can happen from the state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSucceeded, TaskStateFailed, TaskStateCancelled:
		return true
	}
	return false
}

// Text returns the human readable form used in stateText.
func (s TaskState) Text() string {
	if s == TaskStateInProgress {
		return "In Progress"
	}
	return string(s)
}

// MigrationTask is one asynchronous bulk migration of legacy references in a course.
type MigrationTask struct {
	UUID           string    `json:"uuid" gorm:"primaryKey;uuid;not null"`
	CourseKey      string    `json:"-" gorm:"not null;index:idx_migration_tasks_course_state"`
	State          TaskState `json:"state" gorm:"not null;default:Pending;index:idx_migration_tasks_course_state"`
	StateText      string    `json:"state_text"`
	CompletedSteps int       `json:"completed_steps"`
	TotalSteps     int       `json:"total_steps"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

func (MigrationTask) TableName() string {
	return "migration_tasks"
}

// SetState moves the task to state and keeps StateText in step.
func (t *MigrationTask) SetState(state TaskState) {
	t.State = state
	t.StateText = state.Text()
}
