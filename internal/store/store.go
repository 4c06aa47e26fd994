package store

import (
	"context"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
)

type Store interface {
	CourseStore
	LinkStore
	LegacyStore
	TaskStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type CourseStore interface {
	// SaveCourse creates or renames a course.
	SaveCourse(ctx context.Context, course *model.Course) error
	// GetCourse retrieves a course by key.
	GetCourse(ctx context.Context, key string) (*model.Course, error)
}

type LinkStore interface {
	// CreateLink creates a new link.
	CreateLink(ctx context.Context, link *model.PublishableEntityLink) error
	// GetLink retrieves the link of a downstream usage.
	GetLink(ctx context.Context, usageKey string) (*model.PublishableEntityLink, error)
	// ListLinks retrieves the links of a course. ReadyToSync is computed on every returned link.
	ListLinks(ctx context.Context, course string, filter repository.Filter) ([]model.PublishableEntityLink, error)
	// UpdateLink updates a link.
	UpdateLink(ctx context.Context, link *model.PublishableEntityLink) error
	// DeleteLink deletes the link of a downstream usage.
	DeleteLink(ctx context.Context, usageKey string) error
	// PublishUpstream bumps the upstream version of every link to an upstream entity.
	PublishUpstream(ctx context.Context, upstreamKey string, publishedAt time.Time) (int64, error)
	// DeleteUpstream marks every link to an upstream entity as broken.
	DeleteUpstream(ctx context.Context, upstreamKey string) (int64, error)
}

type LegacyStore interface {
	// CreateLegacyBlock creates a new legacy block.
	CreateLegacyBlock(ctx context.Context, block *model.LegacyBlock) error
	// ListLegacyBlocks retrieves the legacy blocks of a course that are not migrated yet.
	ListLegacyBlocks(ctx context.Context, course string) ([]model.LegacyBlock, error)
	// MarkLegacyMigrated marks a legacy block as migrated.
	MarkLegacyMigrated(ctx context.Context, id int64) error
}

type TaskStore interface {
	// CreateTask creates a new migration task.
	CreateTask(ctx context.Context, task *model.MigrationTask) error
	// GetTask retrieves a migration task of a course.
	GetTask(ctx context.Context, course, uuid string) (*model.MigrationTask, error)
	// UpdateTask writes the progress of a migration task that is still in state from.
	UpdateTask(ctx context.Context, task *model.MigrationTask, from model.TaskState) error
	// ActiveTask retrieves the non-terminal migration task of a course.
	ActiveTask(ctx context.Context, course string) (*model.MigrationTask, error)
	// ListTasks retrieves the migration tasks in the given states, oldest first.
	ListTasks(ctx context.Context, states ...model.TaskState) ([]model.MigrationTask, error)
	// ListStaleTasks retrieves non-terminal tasks not updated since before.
	ListStaleTasks(ctx context.Context, before time.Time) ([]model.MigrationTask, error)
}
