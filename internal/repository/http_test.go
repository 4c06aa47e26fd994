package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/emrgen/linksync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const courseKey = "course-v1:org+101+2026"

func TestHTTPClient_New(t *testing.T) {
	c := NewHTTPClient(" http://example.com/api/ ", " token ", nil)
	assert.Equal(t, "http://example.com/api", c.baseURL)
	assert.Equal(t, "token", c.token)
	assert.NotNil(t, c.httpClient)

	c = NewHTTPClient("", "", nil)
	assert.Equal(t, "http://127.0.0.1:4001/api/v1", c.baseURL)
}

func TestHTTPClient_ListLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/links", r.URL.Path)
		assert.Equal(t, courseKey, r.URL.Query().Get("course_id"))
		assert.Equal(t, "true", r.URL.Query().Get("ready_to_sync"))
		assert.Equal(t, "component", r.URL.Query().Get("item_type"))
		assert.Equal(t, "true", r.URL.Query().Get("no_page"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"id": 7,
			"upstream_key": "lb:org:lib:html:1",
			"upstream_type": "component",
			"upstream_context_key": "lib:org:lib",
			"upstream_context_title": "Library",
			"upstream_version": 2,
			"downstream_usage_key": "block-v1:org+101+2026+type@html+block@1",
			"downstream_context_key": "course-v1:org+101+2026",
			"version_synced": 1,
			"version_declined": null,
			"downstream_is_modified": false,
			"ready_to_sync": true,
			"created": "2026-01-01T00:00:00Z",
			"updated": "2026-01-02T00:00:00Z"
		}]`))
	}))
	defer server.Close()

	ready := true
	c := NewHTTPClient(server.URL, "secret", nil)
	links, err := c.ListLinks(context.Background(), courseKey, Filter{ReadyToSync: &ready, ItemType: model.UpstreamTypeComponent})
	require.NoError(t, err)
	require.Len(t, links, 1)

	link := links[0]
	assert.Equal(t, int64(7), link.ID)
	assert.Equal(t, "lib:org:lib", link.UpstreamContextKey)
	assert.Equal(t, int64(2), model.Deref(link.UpstreamVersion))
	assert.Equal(t, int64(1), model.Deref(link.VersionSynced))
	assert.Nil(t, link.VersionDeclined)
	assert.True(t, link.ReadyToSync)
	assert.Equal(t, 2026, link.Created.Year())
}

func TestHTTPClient_ListSummaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/links/"+courseKey+"/summary", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]model.PublishableEntityLinkSummary{
			{UpstreamContextKey: "lib:org:lib", ReadyToSyncCount: 2, TotalCount: 5},
		})
	}))
	defer server.Close()

	summaries, err := NewHTTPClient(server.URL, "", nil).ListSummaries(context.Background(), courseKey)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].ReadyToSyncCount)
	assert.Equal(t, 5, summaries[0].TotalCount)
}

func TestHTTPClient_Mutations(t *testing.T) {
	usageKey := "block-v1:org+101+2026+type@html+block@1"
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "", nil)
	ctx := context.Background()
	require.NoError(t, c.AcceptSync(ctx, usageKey))
	require.NoError(t, c.DeclineSync(ctx, usageKey))
	require.NoError(t, c.Unlink(ctx, usageKey))

	assert.Equal(t, []string{
		"POST /links/" + usageKey + "/sync",
		"DELETE /links/" + usageKey + "/sync",
		"DELETE /links/" + usageKey,
	}, calls)
}

func TestHTTPClient_Migration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /legacy-migration/" + courseKey + "/":
			_, _ = w.Write([]byte(`[{"usage_key":"some-key-1"},{"usage_key":"some-key-2"},{"usage_key":"some-key-3"}]`))
		case "POST /legacy-migration/" + courseKey + "/":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, _ = w.Write([]byte(`{"uuid":"task-1","state":"Pending","state_text":"Pending"}`))
		case "GET /legacy-migration/" + courseKey + "/task-1/":
			_, _ = w.Write([]byte(`{"uuid":"task-1","state":"InProgress","state_text":"In Progress"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "", nil)
	ctx := context.Background()

	blocks, err := c.ListLegacyMigratable(ctx, courseKey)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
	assert.Equal(t, "some-key-1", blocks[0].UsageKey)

	task, err := c.SubmitMigration(ctx, courseKey)
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.UUID)
	assert.Equal(t, courseKey, task.CourseKey)

	status, err := c.GetTaskStatus(ctx, courseKey, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateInProgress, status.State)
}

func TestHTTPClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
		kind   Kind
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Not found."}`, target: ErrNotFound, kind: KindNotFound},
		{name: "conflict", status: http.StatusConflict, body: `{"message":"already running"}`, target: ErrSubmissionConflict, kind: KindSubmissionConflict},
		{name: "forbidden", status: http.StatusForbidden, target: ErrUnauthorized, kind: KindUnauthorized},
		{name: "unavailable", status: http.StatusServiceUnavailable, target: ErrTransientNetwork, kind: KindTransientNetwork},
		{name: "internal", status: http.StatusInternalServerError, target: ErrServer, kind: KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHTTPClient(server.URL, "", nil).ListSummaries(context.Background(), courseKey)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.kind, KindOf(err))

			var repoErr *Error
			require.True(t, errors.As(err, &repoErr))
			assert.Equal(t, tt.status, repoErr.StatusCode)
		})
	}
}

func TestHTTPClient_SubmitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "", nil).SubmitMigration(context.Background(), courseKey)
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(url, "", nil).ListLinks(context.Background(), courseKey, Filter{})
	assert.ErrorIs(t, err, ErrTransientNetwork)
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "", nil).ListLinks(context.Background(), courseKey, Filter{})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestHTTPClient_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL, "", nil).GetTaskStatus(ctx, courseKey, "task")
	assert.True(t, IsCanceled(err))
}

func TestFilter_IsZero(t *testing.T) {
	ready := false
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{ReadyToSync: &ready}.IsZero())
	assert.False(t, Filter{UpstreamKey: "lb:1"}.IsZero())
}
