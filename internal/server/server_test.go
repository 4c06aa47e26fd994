package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/emrgen/linksync/internal/jobs"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/store"
	"github.com/emrgen/linksync/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	course = "course-v1:OpenedX+DemoX+2024"
	token  = "secret"
)

type fixture struct {
	store  *store.GormStore
	server *httptest.Server
	client *repository.HTTPClient
}

func newFixture(t *testing.T) *fixture {
	s := store.NewGormStore(tester.TestDB(t))
	require.NoError(t, s.SaveCourse(context.Background(), &model.Course{Key: course, Title: "Demo"}))

	srv := httptest.NewServer(Routes(s, token))
	t.Cleanup(srv.Close)

	return &fixture{
		store:  s,
		server: srv,
		client: repository.NewHTTPClient(srv.URL+APIPrefix, token, srv.Client()),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+APIPrefix+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_UnknownCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.ListLinks(ctx, "course-v1:Missing+X+Y", repository.Filter{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.client.ListSummaries(ctx, "course-v1:Missing+X+Y")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.client.SubmitMigration(ctx, "course-v1:Missing+X+Y")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServer_EmptyCourse(t *testing.T) {
	f := newFixture(t)

	links, err := f.client.ListLinks(context.Background(), course, repository.Filter{})
	require.NoError(t, err)
	assert.Empty(t, links)

	summaries, err := f.client.ListSummaries(context.Background(), course)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestServer_AcceptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.do(t, http.MethodPost, "/courses/"+url.PathEscape(course)+"/links", `{
		"upstream_key": "lb:lib1:html:intro",
		"upstream_context_key": "lib:lib1",
		"upstream_context_title": "Library One",
		"upstream_version": 2,
		"downstream_usage_key": "block-v1:OpenedX+DemoX+2024+type@html+block@intro",
		"version_synced": 1
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	links, err := f.client.ListLinks(ctx, course, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.True(t, links[0].ReadyToSync)
	assert.Equal(t, course, links[0].DownstreamContextKey)

	summaries, err := f.client.ListSummaries(ctx, course)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].ReadyToSyncCount)
	assert.Equal(t, "Library One", summaries[0].UpstreamContextTitle)

	require.NoError(t, f.client.AcceptSync(ctx, links[0].DownstreamUsageKey))

	links, err = f.client.ListLinks(ctx, course, repository.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), model.Deref(links[0].VersionSynced))
	assert.False(t, links[0].ReadyToSync)

	summaries, err = f.client.ListSummaries(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].ReadyToSyncCount)

	// a new upstream publish makes it stale again
	resp = f.do(t, http.MethodPost, "/upstreams/"+url.PathEscape("lb:lib1:html:intro")+"/publish", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ready := true
	links, err = f.client.ListLinks(ctx, course, repository.Filter{ReadyToSync: &ready})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(3), model.Deref(links[0].UpstreamVersion))

	require.NoError(t, f.client.DeclineSync(ctx, links[0].DownstreamUsageKey))
	links, err = f.client.ListLinks(ctx, course, repository.Filter{ReadyToSync: &ready})
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, f.client.Unlink(ctx, "block-v1:OpenedX+DemoX+2024+type@html+block@intro"))
	err = f.client.Unlink(ctx, "block-v1:OpenedX+DemoX+2024+type@html+block@intro")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServer_AcceptBrokenLink(t *testing.T) {
	f := newFixture(t)
	link := tester.Link(course, "block-1", "lib1", 2, 1, 0, false)
	require.NoError(t, f.store.CreateLink(context.Background(), &link))

	resp := f.do(t, http.MethodDelete, "/upstreams/"+url.PathEscape(link.UpstreamKey), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	err := f.client.AcceptSync(context.Background(), "block-1")
	require.Error(t, err)
	assert.Equal(t, repository.KindServer, repository.KindOf(err))

	var repoErr *repository.Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, http.StatusUnprocessableEntity, repoErr.StatusCode)
}

func TestServer_MarkModified(t *testing.T) {
	f := newFixture(t)
	link := tester.Link(course, "block-1", "lib1", 2, 1, 0, false)
	require.NoError(t, f.store.CreateLink(context.Background(), &link))

	resp := f.do(t, http.MethodPost, "/links/block-1/modified", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := f.store.GetLink(context.Background(), "block-1")
	require.NoError(t, err)
	assert.True(t, stored.DownstreamIsModified)
}

func TestServer_Migration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range []string{"block-v1:a", "block-v1:b", "block-v1:c"} {
		resp := f.do(t, http.MethodPost, "/courses/"+url.PathEscape(course)+"/legacy-blocks",
			`{"usage_key": "`+key+`", "upstream_key": "lb:lib1:html:`+key+`", "upstream_context_key": "lib:lib1", "upstream_version": 1}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	blocks, err := f.client.ListLegacyMigratable(ctx, course)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "block-v1:a", blocks[0].UsageKey)

	task, err := f.client.SubmitMigration(ctx, course)
	require.NoError(t, err)
	require.NotEmpty(t, task.UUID)
	assert.Equal(t, model.TaskStatePending, task.State)
	assert.Equal(t, 3, task.TotalSteps)

	_, err = f.client.SubmitMigration(ctx, course)
	assert.ErrorIs(t, err, repository.ErrSubmissionConflict)

	runner := jobs.NewMigrationRunner(f.store, "@every 1s", 0)
	runner.Run()

	status, err := f.client.GetTaskStatus(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateInProgress, status.State)
	assert.Equal(t, "In Progress", status.StateText)

	runner.Run()
	runner.Run()

	status, err = f.client.GetTaskStatus(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateSucceeded, status.State)
	assert.Equal(t, 3, status.CompletedSteps)

	links, err := f.client.ListLinks(ctx, course, repository.Filter{})
	require.NoError(t, err)
	assert.Len(t, links, 3)

	_, err = f.client.GetTaskStatus(ctx, course, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestServer_RequiresToken(t *testing.T) {
	f := newFixture(t)
	client := repository.NewHTTPClient(f.server.URL+APIPrefix, "wrong", f.server.Client())

	_, err := client.ListLinks(context.Background(), course, repository.Filter{})
	assert.ErrorIs(t, err, repository.ErrUnauthorized)
}

func TestServer_BadRequest(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/links?course_id="+url.QueryEscape(course)+"&ready_to_sync=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/links", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(correlationHeader))
}
