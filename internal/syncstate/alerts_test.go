package syncstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingDismissals struct{}

func (failingDismissals) DismissedCount(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("storage unavailable")
}

func (failingDismissals) SaveDismissedCount(context.Context, string, int) error {
	return errors.New("storage unavailable")
}

func TestAlerts_Visible(t *testing.T) {
	ctx := context.Background()
	alerts := NewAlerts(nil)
	course := "course-v1:org+1+1"

	assert.False(t, alerts.Visible(ctx, course, 0))
	assert.True(t, alerts.Visible(ctx, course, 5))

	assert.NoError(t, alerts.Dismiss(ctx, course, 5))
	assert.False(t, alerts.Visible(ctx, course, 5))

	// more links went stale after the dismissal
	assert.True(t, alerts.Visible(ctx, course, 6))

	// some were resolved, the count differs from the snapshot
	assert.True(t, alerts.Visible(ctx, course, 4))

	// the count returned to the dismissed value through independent changes
	assert.False(t, alerts.Visible(ctx, course, 5))

	// dismissals are per course
	assert.True(t, alerts.Visible(ctx, "course-v1:org+2+2", 5))
}

func TestAlerts_StoreFailureKeepsNoticeVisible(t *testing.T) {
	alerts := NewAlerts(failingDismissals{})
	assert.True(t, alerts.Visible(context.Background(), "course", 3))
	assert.Error(t, alerts.Dismiss(context.Background(), "course", 3))
}
