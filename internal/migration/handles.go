package migration

import (
	"context"
	"sync"
)

// HandleStore remembers the task submitted for a course so polling can resume
// after the poll loop was torn down.
type HandleStore interface {
	SaveHandle(ctx context.Context, course, uuid string) error
	// Handle returns the remembered task uuid of course and whether one exists.
	Handle(ctx context.Context, course string) (string, bool, error)
	ForgetHandle(ctx context.Context, course string) error
}

var _ HandleStore = (*MemoryHandleStore)(nil)

type MemoryHandleStore struct {
	mu      sync.Mutex
	handles map[string]string
}

func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{handles: make(map[string]string)}
}

func (m *MemoryHandleStore) SaveHandle(_ context.Context, course, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handles[course] = uuid
	return nil
}

func (m *MemoryHandleStore) Handle(_ context.Context, course string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uuid, ok := m.handles[course]
	return uuid, ok, nil
}

func (m *MemoryHandleStore) ForgetHandle(_ context.Context, course string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.handles, course)
	return nil
}
