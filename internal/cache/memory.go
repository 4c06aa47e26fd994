package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var _ Store[[]byte] = (*MemoryStore[[]byte])(nil)

type entry[V any] struct {
	value   V
	expires time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryStore keeps values in process memory. A zero ttl keeps entries until invalidated.
type MemoryStore[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]entry[V]
	gens    map[string]uint64
	group   singleflight.Group
}

func NewMemoryStore[V any](ttl time.Duration) *MemoryStore[V] {
	return &MemoryStore[V]{
		ttl:     ttl,
		entries: make(map[Key]entry[V]),
		gens:    make(map[string]uint64),
	}
}

func (m *MemoryStore[V]) Get(ctx context.Context, key Key, fetch Fetcher[V]) (V, error) {
	var zero V
	for attempt := 0; attempt < maxAttempts; attempt++ {
		m.mu.Lock()
		if e, ok := m.entries[key]; ok && !e.expired(time.Now()) {
			m.mu.Unlock()
			return e.value, nil
		}
		gen := m.gens[key.Course]
		m.mu.Unlock()

		ch := m.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
			value, err := fetch(context.WithoutCancel(ctx))
			if err != nil {
				return nil, err
			}

			m.mu.Lock()
			defer m.mu.Unlock()
			if m.gens[key.Course] != gen {
				return nil, errSuperseded
			}
			e := entry[V]{value: value}
			if m.ttl > 0 {
				e.expires = time.Now().Add(m.ttl)
			}
			m.entries[key] = e

			return value, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errSuperseded) {
				continue
			}
			if res.Err != nil {
				return zero, res.Err
			}
			return res.Val.(V), nil
		}
	}

	return zero, ErrSuperseded
}

func (m *MemoryStore[V]) Invalidate(_ context.Context, course string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gens[course]++
	for key := range m.entries {
		if key.Course == course {
			delete(m.entries, key)
		}
	}

	return nil
}

// Len returns the number of cached views.
func (m *MemoryStore[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
