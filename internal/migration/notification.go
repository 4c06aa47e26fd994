package migration

import (
	"context"
	"time"

	"github.com/emrgen/linksync/internal/model"
)

type NotificationKind string

const (
	NotificationInProgress   NotificationKind = "in_progress"
	NotificationSucceeded    NotificationKind = "succeeded"
	NotificationFailed       NotificationKind = "failed"
	NotificationSubmitFailed NotificationKind = "submit_failed"
)

// Notification reports a migration outcome to the author.
type Notification struct {
	Kind     NotificationKind     `json:"kind"`
	Course   string               `json:"course"`
	TaskUUID string               `json:"task_uuid,omitempty"`
	Task     *model.MigrationTask `json:"task,omitempty"`
	Error    string               `json:"error,omitempty"`
	At       time.Time            `json:"at"`

	Err error `json:"-"`
}

func newNotification(kind NotificationKind, course, taskUUID string, task *model.MigrationTask, err error) Notification {
	n := Notification{
		Kind:     kind,
		Course:   course,
		TaskUUID: taskUUID,
		Task:     task,
		At:       time.Now().UTC(),
		Err:      err,
	}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}

// State returns the task state the notification was raised for, if any.
func (n Notification) State() model.TaskState {
	if n.Task == nil {
		return ""
	}
	return n.Task.State
}

// Notifier receives orchestrator notifications. Notify must not block for long;
// it is called from the poll loop of the course.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
