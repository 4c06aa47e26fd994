package cache

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/emrgen/linksync/internal/compress"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	linksView   = "links"
	summaryView = "summary"
)

// LinksKey is the key of a course link listing under filter.
func LinksKey(course string, filter repository.Filter) Key {
	if filter.IsZero() {
		return Key{Course: course, View: linksView}
	}

	q := url.Values{}
	if filter.ReadyToSync != nil {
		q.Set("ready_to_sync", strconv.FormatBool(*filter.ReadyToSync))
	}
	if filter.UpstreamKey != "" {
		q.Set("upstream_key", filter.UpstreamKey)
	}
	if filter.ItemType != "" {
		q.Set("item_type", string(filter.ItemType))
	}
	return Key{Course: course, View: linksView + "?" + q.Encode()}
}

// SummaryKey is the key of the per-library summaries of a course.
func SummaryKey(course string) Key {
	return Key{Course: course, View: summaryView}
}

var _ Invalidator = (*LinkCache)(nil)

// LinkCache reads link listings and summaries through a pair of stores.
type LinkCache struct {
	reader    repository.LinkReader
	links     Store[[]model.PublishableEntityLink]
	summaries Store[[]model.PublishableEntityLinkSummary]
}

func NewLinkCache(reader repository.LinkReader, links Store[[]model.PublishableEntityLink], summaries Store[[]model.PublishableEntityLinkSummary]) *LinkCache {
	return &LinkCache{
		reader:    reader,
		links:     links,
		summaries: summaries,
	}
}

// NewMemoryLinkCache creates a LinkCache kept in process memory.
func NewMemoryLinkCache(reader repository.LinkReader, ttl time.Duration) *LinkCache {
	return NewLinkCache(
		reader,
		NewMemoryStore[[]model.PublishableEntityLink](ttl),
		NewMemoryStore[[]model.PublishableEntityLinkSummary](ttl),
	)
}

// NewRedisLinkCache creates a LinkCache shared through redis.
func NewRedisLinkCache(reader repository.LinkReader, client *redis.Client, codec compress.Compress, ttl time.Duration) *LinkCache {
	return NewLinkCache(
		reader,
		NewRedisStore[[]model.PublishableEntityLink](client, codec, ttl),
		NewRedisStore[[]model.PublishableEntityLinkSummary](client, codec, ttl),
	)
}

// Links returns the links of course matching the upstream and type selectors
// of filter. Readiness is never delegated to the server: the listing is fetched
// without it and callers filter on the recomputed state.
func (c *LinkCache) Links(ctx context.Context, course string, filter repository.Filter) ([]model.PublishableEntityLink, error) {
	remote := filter
	remote.ReadyToSync = nil
	return c.links.Get(ctx, LinksKey(course, filter), func(ctx context.Context) ([]model.PublishableEntityLink, error) {
		return c.reader.ListLinks(ctx, course, remote)
	})
}

// Summaries returns the per-library summaries of course as reported by the server.
func (c *LinkCache) Summaries(ctx context.Context, course string) ([]model.PublishableEntityLinkSummary, error) {
	return c.summaries.Get(ctx, SummaryKey(course), func(ctx context.Context) ([]model.PublishableEntityLinkSummary, error) {
		return c.reader.ListSummaries(ctx, course)
	})
}

// Invalidate drops every cached view of course.
func (c *LinkCache) Invalidate(ctx context.Context, course string) error {
	logrus.Debugf("invalidating cached views of %s", course)
	return errors.Join(
		c.links.Invalidate(ctx, course),
		c.summaries.Invalidate(ctx, course),
	)
}
