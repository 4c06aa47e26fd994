package store

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/linksync/internal/migration"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/syncstate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ syncstate.DismissalStore = (*GormLocalStore)(nil)
	_ migration.HandleStore    = (*GormLocalStore)(nil)
)

// GormLocalStore keeps client-local state: dismissed alert counts and remembered task handles.
type GormLocalStore struct {
	db *gorm.DB
}

func NewGormLocalStore(db *gorm.DB) *GormLocalStore {
	return &GormLocalStore{db: db}
}

func (g *GormLocalStore) Migrate() error {
	return model.MigrateLocal(g.db)
}

func (g *GormLocalStore) DismissedCount(ctx context.Context, course string) (int, bool, error) {
	var dismissal model.AlertDismissal
	err := g.db.WithContext(ctx).Where("course_key = ?", course).First(&dismissal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dismissal.Count, true, nil
}

func (g *GormLocalStore) SaveDismissedCount(ctx context.Context, course string, count int) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&model.AlertDismissal{
		CourseKey:   course,
		Count:       count,
		DismissedAt: time.Now().UTC(),
	}).Error
}

func (g *GormLocalStore) SaveHandle(ctx context.Context, course, uuid string) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&model.TaskHandle{
		CourseKey: course,
		UUID:      uuid,
	}).Error
}

func (g *GormLocalStore) Handle(ctx context.Context, course string) (string, bool, error) {
	var handle model.TaskHandle
	err := g.db.WithContext(ctx).Where("course_key = ?", course).First(&handle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return handle.UUID, true, nil
}

func (g *GormLocalStore) ForgetHandle(ctx context.Context, course string) error {
	return g.db.WithContext(ctx).Where("course_key = ?", course).Delete(&model.TaskHandle{}).Error
}
