// Package repository is a typed wrapper over the remote link and legacy-migration endpoints.
//
// It holds no state. Reads are idempotent; writes, and in particular
// SubmitMigration, are never retried here.
package repository

import (
	"context"

	"github.com/emrgen/linksync/internal/model"
)

// Filter narrows a link listing. The zero value lists every link of the course.
type Filter struct {
	ReadyToSync *bool
	UpstreamKey string
	ItemType    model.UpstreamType
}

// IsZero reports whether the filter selects the complete link set.
func (f Filter) IsZero() bool {
	return f.ReadyToSync == nil && f.UpstreamKey == "" && f.ItemType == ""
}

type Repository interface {
	LinkReader
	LinkWriter
	MigrationAPI
}

type LinkReader interface {
	// ListLinks lists the links of a course, unpaginated.
	ListLinks(ctx context.Context, downstreamContextKey string, filter Filter) ([]model.PublishableEntityLink, error)
	// ListSummaries lists the per-library summaries of a course.
	ListSummaries(ctx context.Context, downstreamContextKey string) ([]model.PublishableEntityLinkSummary, error)
}

type LinkWriter interface {
	// AcceptSync brings a downstream usage up to date with its upstream.
	AcceptSync(ctx context.Context, downstreamUsageKey string) error
	// DeclineSync skips the current upstream version for a downstream usage.
	DeclineSync(ctx context.Context, downstreamUsageKey string) error
	// Unlink removes the link of a downstream usage.
	Unlink(ctx context.Context, downstreamUsageKey string) error
}

type MigrationAPI interface {
	// ListLegacyMigratable lists legacy blocks of a course that can be migrated.
	ListLegacyMigratable(ctx context.Context, courseID string) ([]model.LegacyBlock, error)
	// SubmitMigration creates a migration task. It is never retried.
	SubmitMigration(ctx context.Context, courseID string) (*model.MigrationTask, error)
	// GetTaskStatus returns the current state of a migration task.
	GetTaskStatus(ctx context.Context, courseID, uuid string) (*model.MigrationTask, error)
}
