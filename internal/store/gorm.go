package store

import (
	"context"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/syncstate"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) SaveCourse(ctx context.Context, course *model.Course) error {
	return g.db.WithContext(ctx).Save(course).Error
}

func (g *GormStore) GetCourse(ctx context.Context, key string) (*model.Course, error) {
	var course model.Course
	err := g.db.WithContext(ctx).Where("course_key = ?", key).First(&course).Error
	if err != nil {
		return nil, translate(err)
	}
	return &course, nil
}

func (g *GormStore) CreateLink(ctx context.Context, link *model.PublishableEntityLink) error {
	if err := link.Validate(); err != nil {
		return err
	}
	return g.db.WithContext(ctx).Create(link).Error
}

func (g *GormStore) GetLink(ctx context.Context, usageKey string) (*model.PublishableEntityLink, error) {
	var link model.PublishableEntityLink
	err := g.db.WithContext(ctx).Where("downstream_usage_key = ?", usageKey).First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	link.ReadyToSync = syncstate.IsOutOfSync(&link)
	return &link, nil
}

// ListLinks filters on readiness after loading, since readiness is derived from the version counters.
func (g *GormStore) ListLinks(ctx context.Context, course string, filter repository.Filter) ([]model.PublishableEntityLink, error) {
	query := g.db.WithContext(ctx).Where("downstream_context_key = ?", course)
	if filter.UpstreamKey != "" {
		query = query.Where("upstream_key = ?", filter.UpstreamKey)
	}
	if filter.ItemType != "" {
		query = query.Where("upstream_type = ?", filter.ItemType)
	}

	var links []model.PublishableEntityLink
	if err := query.Order("id").Find(&links).Error; err != nil {
		return nil, err
	}

	filtered := make([]model.PublishableEntityLink, 0, len(links))
	for i := range links {
		links[i].ReadyToSync = syncstate.IsOutOfSync(&links[i])
		if filter.ReadyToSync != nil && links[i].ReadyToSync != *filter.ReadyToSync {
			continue
		}
		filtered = append(filtered, links[i])
	}
	return filtered, nil
}

func (g *GormStore) UpdateLink(ctx context.Context, link *model.PublishableEntityLink) error {
	if err := link.Validate(); err != nil {
		return err
	}
	return g.db.WithContext(ctx).Save(link).Error
}

func (g *GormStore) DeleteLink(ctx context.Context, usageKey string) error {
	res := g.db.WithContext(ctx).Where("downstream_usage_key = ?", usageKey).Delete(&model.PublishableEntityLink{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) PublishUpstream(ctx context.Context, upstreamKey string, publishedAt time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Model(&model.PublishableEntityLink{}).
		Where("upstream_key = ? AND upstream_version IS NOT NULL", upstreamKey).
		Updates(map[string]any{
			"upstream_version":      gorm.Expr("upstream_version + 1"),
			"upstream_published_at": publishedAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	logrus.Infof("published %s to %d links", upstreamKey, res.RowsAffected)
	return res.RowsAffected, nil
}

func (g *GormStore) DeleteUpstream(ctx context.Context, upstreamKey string) (int64, error) {
	res := g.db.WithContext(ctx).Model(&model.PublishableEntityLink{}).
		Where("upstream_key = ?", upstreamKey).
		Update("upstream_version", nil)
	return res.RowsAffected, res.Error
}

func (g *GormStore) CreateLegacyBlock(ctx context.Context, block *model.LegacyBlock) error {
	return g.db.WithContext(ctx).Create(block).Error
}

func (g *GormStore) ListLegacyBlocks(ctx context.Context, course string) ([]model.LegacyBlock, error) {
	var blocks []model.LegacyBlock
	err := g.db.WithContext(ctx).Where("course_key = ? AND migrated = ?", course, false).Order("id").Find(&blocks).Error
	return blocks, err
}

func (g *GormStore) MarkLegacyMigrated(ctx context.Context, id int64) error {
	return g.db.WithContext(ctx).Model(&model.LegacyBlock{}).Where("id = ?", id).Update("migrated", true).Error
}

func (g *GormStore) CreateTask(ctx context.Context, task *model.MigrationTask) error {
	return g.db.WithContext(ctx).Create(task).Error
}

func (g *GormStore) GetTask(ctx context.Context, course, uuid string) (*model.MigrationTask, error) {
	var task model.MigrationTask
	err := g.db.WithContext(ctx).Where("uuid = ? AND course_key = ?", uuid, course).First(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (g *GormStore) UpdateTask(ctx context.Context, task *model.MigrationTask, from model.TaskState) error {
	task.UpdatedAt = time.Now()
	res := g.db.WithContext(ctx).
		Model(&model.MigrationTask{}).
		Where("uuid = ? AND state = ?", task.UUID, from).
		Updates(map[string]any{
			"state":           task.State,
			"state_text":      task.StateText,
			"completed_steps": task.CompletedSteps,
			"total_steps":     task.TotalSteps,
			"error":           task.Error,
			"updated_at":      task.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskConflict
	}
	return nil
}

func (g *GormStore) ActiveTask(ctx context.Context, course string) (*model.MigrationTask, error) {
	var task model.MigrationTask
	err := g.db.WithContext(ctx).
		Where("course_key = ? AND state IN ?", course, []model.TaskState{model.TaskStatePending, model.TaskStateInProgress}).
		Order("created_at desc").
		First(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (g *GormStore) ListTasks(ctx context.Context, states ...model.TaskState) ([]model.MigrationTask, error) {
	var tasks []model.MigrationTask
	err := g.db.WithContext(ctx).Where("state IN ?", states).Order("created_at").Find(&tasks).Error
	return tasks, err
}

func (g *GormStore) ListStaleTasks(ctx context.Context, before time.Time) ([]model.MigrationTask, error) {
	var tasks []model.MigrationTask
	err := g.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", []model.TaskState{model.TaskStatePending, model.TaskStateInProgress}, before).
		Order("created_at").
		Find(&tasks).Error
	return tasks, err
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}
