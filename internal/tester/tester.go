// Package tester holds the fixtures shared by package tests.
package tester

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/linksync/internal/model"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB opens a fresh sqlite database with every table migrated.
func TestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "linksync.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := model.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := model.MigrateLocal(db); err != nil {
		t.Fatalf("migrate local test db: %v", err)
	}

	return db
}

// Redis starts an in-process redis server and returns a client connected to it.
func Redis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, server
}
