package model

import "time"

// PublishableEntityLinkSummary is one row per upstream library referenced by a course.
// It is derived from the link set and never persisted.
type PublishableEntityLinkSummary struct {
	UpstreamContextKey   string     `json:"upstream_context_key"`
	UpstreamContextTitle string     `json:"upstream_context_title"`
	ReadyToSyncCount     int        `json:"ready_to_sync_count"`
	TotalCount           int        `json:"total_count"`
	LastPublishedAt      *time.Time `json:"last_published_at"`
}
