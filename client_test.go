package linksync_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/emrgen/linksync"
	"github.com/emrgen/linksync/internal/config"
	"github.com/emrgen/linksync/internal/jobs"
	"github.com/emrgen/linksync/internal/migration"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/server"
	"github.com/emrgen/linksync/internal/service"
	"github.com/emrgen/linksync/internal/store"
	"github.com/emrgen/linksync/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const course = "course-v1:OpenedX+DemoX+2024"

func newStack(t *testing.T, opts ...linksync.Option) (*store.GormStore, *linksync.Client) {
	s := store.NewGormStore(tester.TestDB(t))
	require.NoError(t, s.SaveCourse(context.Background(), &model.Course{Key: course, Title: "Demo"}))

	srv := httptest.NewServer(server.Routes(s, "secret"))
	t.Cleanup(srv.Close)

	cfg := &linksync.Config{
		API:       config.APIConfig{BaseURL: srv.URL + server.APIPrefix, Token: "secret", Timeout: 5 * time.Second},
		Migration: config.MigrationConfig{PollInterval: 20 * time.Millisecond},
		Cache:     config.CacheConfig{Backend: "memory", TTL: time.Minute},
		State:     config.StateConfig{Path: filepath.Join(t.TempDir(), "state", "state.db")},
	}

	client, err := linksync.NewClient(cfg, append(opts, linksync.WithHTTPClient(srv.Client()))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return s, client
}

func createLink(t *testing.T, s *store.GormStore, usageKey, library string, upstream, synced int64) {
	link := tester.Link(course, usageKey, library, upstream, synced, 0, false)
	require.NoError(t, s.CreateLink(context.Background(), &link))
}

func TestClient_SyncFlow(t *testing.T) {
	s, client := newStack(t)
	ctx := context.Background()

	createLink(t, s, "block-1", "lib1", 2, 2)
	createLink(t, s, "block-2", "lib1", 2, 2)

	links, err := client.Links(ctx, course, linksync.Filter{})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.False(t, links[0].OutOfSync)

	_, err = s.PublishUpstream(ctx, "lb:lib1:html:block-1", time.Now())
	require.NoError(t, err)

	// served from cache until the course is refreshed
	state, err := client.AlertState(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Count)

	require.NoError(t, client.Refresh(ctx, course))

	state, err = client.AlertState(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, linksync.AlertState{Count: 1, Visible: true}, state)

	state, err = client.DismissAlert(ctx, course)
	require.NoError(t, err)
	assert.False(t, state.Visible)

	state, err = client.AlertState(ctx, course)
	require.NoError(t, err)
	assert.False(t, state.Visible)

	summaries, err := client.Summaries(ctx, course)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].ReadyToSyncCount)
	assert.Equal(t, 2, summaries[0].TotalCount)

	require.NoError(t, client.Accept(ctx, course, "block-1", linksync.AcceptOptions{}))

	link, err := client.Link(ctx, course, "block-1")
	require.NoError(t, err)
	assert.False(t, link.OutOfSync)
	assert.Equal(t, int64(3), model.Deref(link.VersionSynced))

	require.NoError(t, client.Unlink(ctx, course, "block-2"))

	links, err = client.Links(ctx, course, linksync.Filter{})
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestClient_AcceptNeedsConfirmation(t *testing.T) {
	s, client := newStack(t)
	ctx := context.Background()

	link := tester.Link(course, "block-1", "lib1", 3, 2, 0, true)
	require.NoError(t, s.CreateLink(ctx, &link))

	err := client.Accept(ctx, course, "block-1", linksync.AcceptOptions{})
	assert.ErrorIs(t, err, service.ErrLocalChangesConflict)

	require.NoError(t, client.Accept(ctx, course, "block-1", linksync.AcceptOptions{OverwriteLocalChanges: true}))

	stored, err := s.GetLink(ctx, "block-1")
	require.NoError(t, err)
	assert.False(t, stored.DownstreamIsModified)
}

func TestClient_Migration(t *testing.T) {
	notifications := migration.NewChannelNotifier(8)
	s, client := newStack(t, linksync.WithNotifier(notifications))
	ctx := context.Background()

	for _, key := range []string{"block-v1:a", "block-v1:b"} {
		require.NoError(t, s.CreateLegacyBlock(ctx, &model.LegacyBlock{
			CourseKey:          course,
			UsageKey:           key,
			UpstreamKey:        "lb:lib1:html:" + key,
			UpstreamContextKey: "lib:lib1",
			UpstreamVersion:    1,
		}))
	}

	// warm the cache so the success path has something to invalidate
	links, err := client.Links(ctx, course, linksync.Filter{})
	require.NoError(t, err)
	assert.Empty(t, links)

	blocks, err := client.LegacyBlocks(ctx, course)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	task, err := client.Migrate(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, migration.PhasePolling, client.MigrationPhase(course))

	_, err = client.Migrate(ctx, course)
	assert.ErrorIs(t, err, migration.ErrTaskActive)

	runner := jobs.NewMigrationRunner(s, "@every 1s", 1)
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runner.Run()
			}
		}
	}()

	select {
	case <-client.MigrationDone(course):
	case <-time.After(5 * time.Second):
		t.Fatal("migration did not finish")
	}

	var last linksync.Notification
	for len(notifications.C()) > 0 {
		last = <-notifications.C()
	}
	assert.Equal(t, migration.NotificationSucceeded, last.Kind)
	assert.Equal(t, task.UUID, last.TaskUUID)
	assert.Equal(t, migration.PhaseIdle, client.MigrationPhase(course))

	links, err = client.Links(ctx, course, linksync.Filter{})
	require.NoError(t, err)
	assert.Len(t, links, 2)

	status, err := client.TaskStatus(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateSucceeded, status.State)

	blocks, err = client.LegacyBlocks(ctx, course)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestClient_UnknownCourse(t *testing.T) {
	_, client := newStack(t)
	ctx := context.Background()

	links, err := client.Links(ctx, "course-v1:Missing+X+Y", linksync.Filter{})
	require.NoError(t, err)
	assert.Empty(t, links)

	blocks, err := client.LegacyBlocks(ctx, "course-v1:Missing+X+Y")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
