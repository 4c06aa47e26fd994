package migration

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*ChannelNotifier)(nil)
	_ Notifier = (MultiNotifier)(nil)
)

// LogNotifier writes notifications to the logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	entry := logrus.WithFields(logrus.Fields{
		"course": n.Course,
		"task":   n.TaskUUID,
		"state":  n.State(),
	})

	switch n.Kind {
	case NotificationInProgress:
		entry.Info("migration in progress")
	case NotificationSucceeded:
		entry.Info("migration succeeded")
	case NotificationFailed:
		entry.Warnf("migration failed: %s", n.Error)
	case NotificationSubmitFailed:
		entry.Errorf("migration could not be submitted: %s", n.Error)
	}
	return nil
}

// ChannelNotifier delivers notifications on a buffered channel. A notification
// that does not fit in the buffer is dropped.
type ChannelNotifier struct {
	ch chan Notification
}

func NewChannelNotifier(size int) *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan Notification, size)}
}

func (c *ChannelNotifier) C() <-chan Notification {
	return c.ch
}

func (c *ChannelNotifier) Notify(_ context.Context, n Notification) error {
	select {
	case c.ch <- n:
	default:
		logrus.Warnf("dropping %s notification of %s, channel full", n.Kind, n.Course)
	}
	return nil
}

// MultiNotifier fans a notification out to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
