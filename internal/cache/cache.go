// Package cache is the keyed, invalidatable read-through cache of course link views.
//
// Every key belongs to a course, and Invalidate(course) drops every view of that
// course at once. Concurrent Get calls for the same key share one fetch. A fetch
// that was superseded by an invalidation while in flight is discarded and the
// waiting callers fetch again, so a Get never returns data that was known to be
// stale when it resolved.
//
// Values handed out by a store are shared between callers and must be treated
// as read-only.
package cache

import (
	"context"
	"errors"
)

// maxAttempts bounds how often Get refetches after its flight was superseded.
const maxAttempts = 5

var (
	// ErrSuperseded is returned when every fetch attempt was invalidated while in flight.
	ErrSuperseded = errors.New("cache entry invalidated while fetching")

	errSuperseded = errors.New("superseded")
)

// Key identifies one cached view of a course.
type Key struct {
	Course string
	View   string
}

func (k Key) String() string {
	return k.Course + "/" + k.View
}

// Fetcher loads the value of a key from the remote source.
type Fetcher[V any] func(ctx context.Context) (V, error)

// Store is a keyed read-through cache.
type Store[V any] interface {
	// Get returns the cached value of key or loads it with fetch.
	Get(ctx context.Context, key Key, fetch Fetcher[V]) (V, error)
	Invalidator
}

// Invalidator drops every cached view of a course.
type Invalidator interface {
	Invalidate(ctx context.Context, course string) error
}
