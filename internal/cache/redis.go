package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emrgen/linksync/internal/compress"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultRedisPrefix = "linksync"

var _ Store[[]byte] = (*RedisStore[[]byte])(nil)

// RedisStore keeps values in redis so several processes share one cache.
// Entries are written under the current generation of their course; an
// invalidation bumps the generation, which orphans every older entry.
type RedisStore[V any] struct {
	client *redis.Client
	codec  compress.Compress
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

func NewRedisStore[V any](client *redis.Client, codec compress.Compress, ttl time.Duration) *RedisStore[V] {
	if codec == nil {
		codec = compress.NewNop()
	}
	return &RedisStore[V]{
		client: client,
		codec:  codec,
		ttl:    ttl,
		prefix: defaultRedisPrefix,
	}
}

func (r *RedisStore[V]) generationKey(course string) string {
	return r.prefix + ":gen:{" + course + "}"
}

func (r *RedisStore[V]) viewKey(key Key, gen int64) string {
	return fmt.Sprintf("%s:view:{%s}:%d:%s", r.prefix, key.Course, gen, key.View)
}

func (r *RedisStore[V]) generation(ctx context.Context, course string) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(course)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisStore[V]) Get(ctx context.Context, key Key, fetch Fetcher[V]) (V, error) {
	var zero V
	for attempt := 0; attempt < maxAttempts; attempt++ {
		gen, err := r.generation(ctx, key.Course)
		if err != nil {
			logrus.Warnf("redis cache unavailable for %s, fetching uncached: %v", key, err)
			return fetch(ctx)
		}

		viewKey := r.viewKey(key, gen)
		if value, ok := r.read(ctx, viewKey); ok {
			return value, nil
		}

		ch := r.group.DoChan(viewKey, func() (any, error) {
			fetchCtx := context.WithoutCancel(ctx)
			value, err := fetch(fetchCtx)
			if err != nil {
				return nil, err
			}

			current, err := r.generation(fetchCtx, key.Course)
			if err != nil {
				return value, nil
			}
			if current != gen {
				return nil, errSuperseded
			}
			r.write(fetchCtx, viewKey, value)

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

func (r *RedisStore[V]) read(ctx context.Context, viewKey string) (V, bool) {
	var value V
	data, err := r.client.Get(ctx, viewKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.Warnf("failed to read cache entry %s: %v", viewKey, err)
		}
		return value, false
	}

	decoded, err := r.codec.Decode(data)
	if err != nil {
		logrus.Warnf("failed to decode cache entry %s: %v", viewKey, err)
		return value, false
	}

	if err := json.Unmarshal(decoded, &value); err != nil {
		logrus.Warnf("failed to unmarshal cache entry %s: %v", viewKey, err)
		return value, false
	}

	return value, true
}

func (r *RedisStore[V]) write(ctx context.Context, viewKey string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.Warnf("failed to marshal cache entry %s: %v", viewKey, err)
		return
	}

	encoded, err := r.codec.Encode(data)
	if err != nil {
		logrus.Warnf("failed to encode cache entry %s: %v", viewKey, err)
		return
	}

	if err := r.client.Set(ctx, viewKey, encoded, r.ttl).Err(); err != nil {
		logrus.Warnf("failed to write cache entry %s: %v", viewKey, err)
	}
}

func (r *RedisStore[V]) Invalidate(ctx context.Context, course string) error {
	if err := r.client.Incr(ctx, r.generationKey(course)).Err(); err != nil {
		return err
	}

	// orphaned generations expire on their own; this only frees memory early
	pattern := fmt.Sprintf("%s:view:{%s}:*", r.prefix, escapeGlob(course))
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var stale []string
	for iter.Next(ctx) {
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logrus.Warnf("failed to scan stale cache entries of %s: %v", course, err)
		return nil
	}
	if len(stale) > 0 {
		if err := r.client.Del(ctx, stale...).Err(); err != nil {
			logrus.Warnf("failed to delete stale cache entries of %s: %v", course, err)
		}
	}

	return nil
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
