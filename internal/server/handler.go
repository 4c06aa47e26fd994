package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/store"
	"github.com/emrgen/linksync/internal/syncstate"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	APIPrefix    = "/api/v1"
	maxBodyBytes = 1 << 20
)

var errTaskActive = errors.New("a migration task is already active for the course")

// Handler serves the link and legacy-migration endpoints from a store.
type Handler struct {
	store store.Store
	mux   *http.ServeMux
}

// NewHandler returns the API handler mounted under /api/v1.
func NewHandler(s store.Store) *Handler {
	h := &Handler{store: s, mux: http.NewServeMux()}

	h.handle("GET /links", h.listLinks)
	h.handle("GET /links/{course}/summary", h.listSummaries)
	h.handle("POST /links/{usageKey}/sync", h.acceptSync)
	h.handle("DELETE /links/{usageKey}/sync", h.declineSync)
	h.handle("POST /links/{usageKey}/modified", h.markModified)
	h.handle("DELETE /links/{usageKey}", h.unlink)

	h.handle("GET /legacy-migration/{course}/{$}", h.listLegacyBlocks)
	h.handle("POST /legacy-migration/{course}/{$}", h.submitMigration)
	h.handle("GET /legacy-migration/{course}/{uuid}/{$}", h.getTask)

	h.handle("PUT /courses/{course}", h.saveCourse)
	h.handle("POST /courses/{course}/links", h.createLink)
	h.handle("POST /courses/{course}/legacy-blocks", h.createLegacyBlock)
	h.handle("POST /upstreams/{key}/publish", h.publishUpstream)
	h.handle("DELETE /upstreams/{key}", h.deleteUpstream)

	return h
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	h.mux.HandleFunc(method+" "+APIPrefix+path, fn)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	course := q.Get("course_id")
	if course == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "course_id is required")
		return
	}

	filter := repository.Filter{
		UpstreamKey: q.Get("upstream_key"),
		ItemType:    model.UpstreamType(q.Get("item_type")),
	}
	if raw := q.Get("ready_to_sync"); raw != "" {
		ready, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "ready_to_sync must be a boolean")
			return
		}
		filter.ReadyToSync = &ready
	}

	if !h.requireCourse(w, r, course) {
		return
	}

	links, err := h.store.ListLinks(r.Context(), course, filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	course := r.PathValue("course")
	if !h.requireCourse(w, r, course) {
		return
	}

	links, err := h.store.ListLinks(r.Context(), course, repository.Filter{})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncstate.Summarize(links))
}

func (h *Handler) acceptSync(w http.ResponseWriter, r *http.Request) {
	h.updateLink(w, r, (*model.PublishableEntityLink).AcceptUpstream)
}

func (h *Handler) declineSync(w http.ResponseWriter, r *http.Request) {
	h.updateLink(w, r, (*model.PublishableEntityLink).DeclineUpstream)
}

func (h *Handler) markModified(w http.ResponseWriter, r *http.Request) {
	h.updateLink(w, r, func(link *model.PublishableEntityLink) error {
		link.DownstreamIsModified = true
		return nil
	})
}

func (h *Handler) updateLink(w http.ResponseWriter, r *http.Request, apply func(link *model.PublishableEntityLink) error) {
	ctx := r.Context()
	usageKey := r.PathValue("usageKey")

	var link *model.PublishableEntityLink
	err := h.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		link, err = tx.GetLink(ctx, usageKey)
		if err != nil {
			return err
		}
		if err := apply(link); err != nil {
			return err
		}
		return tx.UpdateLink(ctx, link)
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	link.ReadyToSync = syncstate.IsOutOfSync(link)
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteLink(r.Context(), r.PathValue("usageKey")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listLegacyBlocks(w http.ResponseWriter, r *http.Request) {
	course := r.PathValue("course")
	if !h.requireCourse(w, r, course) {
		return
	}

	blocks, err := h.store.ListLegacyBlocks(r.Context(), course)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *Handler) submitMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	course := r.PathValue("course")

	var task *model.MigrationTask
	err := h.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetCourse(ctx, course); err != nil {
			return err
		}

		active, err := tx.ActiveTask(ctx, course)
		if err == nil {
			return fmt.Errorf("%w: %s", errTaskActive, active.UUID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		blocks, err := tx.ListLegacyBlocks(ctx, course)
		if err != nil {
			return err
		}

		task = &model.MigrationTask{UUID: uuid.NewString(), CourseKey: course, TotalSteps: len(blocks)}
		task.SetState(model.TaskStatePending)
		return tx.CreateTask(ctx, task)
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	logrus.Infof("created migration task %s for %s", task.UUID, course)
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), r.PathValue("course"), r.PathValue("uuid"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) saveCourse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	course := &model.Course{Key: r.PathValue("course"), Title: body.Title}
	if err := h.store.SaveCourse(r.Context(), course); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (h *Handler) createLink(w http.ResponseWriter, r *http.Request) {
	course := r.PathValue("course")
	if !h.requireCourse(w, r, course) {
		return
	}

	var link model.PublishableEntityLink
	if !decodeBody(w, r, &link) {
		return
	}
	link.ID = 0
	link.DownstreamContextKey = course
	if link.UpstreamType == "" {
		link.UpstreamType = model.UpstreamTypeComponent
	}
	if link.UpstreamKey == "" || link.DownstreamUsageKey == "" || link.UpstreamContextKey == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "upstream_key, upstream_context_key and downstream_usage_key are required")
		return
	}

	if err := h.store.CreateLink(r.Context(), &link); err != nil {
		writeStoreError(w, r, err)
		return
	}
	link.ReadyToSync = syncstate.IsOutOfSync(&link)
	writeJSON(w, http.StatusCreated, link)
}

type legacyBlockRequest struct {
	UsageKey             string `json:"usage_key"`
	UpstreamKey          string `json:"upstream_key"`
	UpstreamType         string `json:"upstream_type"`
	UpstreamContextKey   string `json:"upstream_context_key"`
	UpstreamContextTitle string `json:"upstream_context_title"`
	UpstreamVersion      int64  `json:"upstream_version"`
}

func (h *Handler) createLegacyBlock(w http.ResponseWriter, r *http.Request) {
	course := r.PathValue("course")
	if !h.requireCourse(w, r, course) {
		return
	}

	var body legacyBlockRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UsageKey == "" || body.UpstreamKey == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "usage_key and upstream_key are required")
		return
	}

	block := &model.LegacyBlock{
		CourseKey:            course,
		UsageKey:             body.UsageKey,
		UpstreamKey:          body.UpstreamKey,
		UpstreamType:         body.UpstreamType,
		UpstreamContextKey:   body.UpstreamContextKey,
		UpstreamContextTitle: body.UpstreamContextTitle,
		UpstreamVersion:      body.UpstreamVersion,
	}
	if err := h.store.CreateLegacyBlock(r.Context(), block); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (h *Handler) publishUpstream(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.PublishUpstream(r.Context(), r.PathValue("key"), time.Now().UTC())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) deleteUpstream(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteUpstream(r.Context(), r.PathValue("key"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) requireCourse(w http.ResponseWriter, r *http.Request, course string) bool {
	if _, err := h.store.GetCourse(r.Context(), course); err != nil {
		writeStoreError(w, r, err)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "failed to read body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errTaskActive):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, model.ErrBrokenLink),
		errors.Is(err, model.ErrVersionAhead),
		errors.Is(err, model.ErrDeclineRegressed):
		writeError(w, r, http.StatusUnprocessableEntity, "unprocessable", err.Error())
	default:
		logrus.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":           code,
		"message":        message,
		"correlation_id": r.Header.Get(correlationHeader),
	})
}
