package syncstate

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// DismissalStore persists the last dismissed staleness count per course.
type DismissalStore interface {
	// DismissedCount returns the dismissed count and whether one was recorded.
	DismissedCount(ctx context.Context, course string) (int, bool, error)
	// SaveDismissedCount records count as dismissed for course.
	SaveDismissedCount(ctx context.Context, course string, count int) error
}

// Alerts decides whether the "N components are out of sync" notice is shown.
// A dismissal is a snapshot of the count at dismissal time, not a permanent flag.
type Alerts struct {
	store DismissalStore
}

func NewAlerts(store DismissalStore) *Alerts {
	if store == nil {
		store = NewMemoryDismissalStore()
	}
	return &Alerts{store: store}
}

// Visible reports whether the notice should be shown for count stale links.
// A store failure never hides the notice.
func (a *Alerts) Visible(ctx context.Context, course string, count int) bool {
	if count <= 0 {
		return false
	}

	dismissed, ok, err := a.store.DismissedCount(ctx, course)
	if err != nil {
		logrus.Warnf("failed to read alert dismissal for %s: %v", course, err)
		return true
	}

	return !ok || dismissed != count
}

// Dismiss records count as the dismissed snapshot for course.
func (a *Alerts) Dismiss(ctx context.Context, course string, count int) error {
	return a.store.SaveDismissedCount(ctx, course, count)
}

var _ DismissalStore = (*MemoryDismissalStore)(nil)

type MemoryDismissalStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryDismissalStore() *MemoryDismissalStore {
	return &MemoryDismissalStore{counts: make(map[string]int)}
}

func (m *MemoryDismissalStore) DismissedCount(_ context.Context, course string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.counts[course]
	return count, ok, nil
}

func (m *MemoryDismissalStore) SaveDismissedCount(_ context.Context, course string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[course] = count
	return nil
}
