package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/linksync/internal/cache"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/syncstate"
	"github.com/sirupsen/logrus"
)

// LinkSource serves link listings and server summaries of a course, usually through a cache.
type LinkSource interface {
	Links(ctx context.Context, course string, filter repository.Filter) ([]model.PublishableEntityLink, error)
	Summaries(ctx context.Context, course string) ([]model.PublishableEntityLinkSummary, error)
	cache.Invalidator
}

var _ LinkSource = (*cache.LinkCache)(nil)

// AcceptOptions controls how an upstream update is accepted.
type AcceptOptions struct {
	// OverwriteLocalChanges confirms that local edits of the downstream copy may be discarded.
	OverwriteLocalChanges bool
}

// AlertState is the "N components are out of sync" notice of a course.
type AlertState struct {
	Count   int  `json:"count"`
	Visible bool `json:"visible"`
}

// LinkService reads annotated links and applies link mutations.
// Every mutation completes remotely before the course views are invalidated.
type LinkService struct {
	source LinkSource
	writer repository.LinkWriter
	alerts *syncstate.Alerts
}

// NewLinkService creates a new LinkService. A nil alerts keeps dismissals in memory.
func NewLinkService(source LinkSource, writer repository.LinkWriter, alerts *syncstate.Alerts) *LinkService {
	if alerts == nil {
		alerts = syncstate.NewAlerts(nil)
	}
	return &LinkService{
		source: source,
		writer: writer,
		alerts: alerts,
	}
}

// ListLinks returns the classified links of course. An unknown course has no links.
// When filter selects on readiness, the recomputed state decides membership.
func (s *LinkService) ListLinks(ctx context.Context, course string, filter repository.Filter) ([]syncstate.AnnotatedLink, error) {
	links, err := s.source.Links(ctx, course, filter)
	if errors.Is(err, repository.ErrNotFound) {
		return []syncstate.AnnotatedLink{}, nil
	}
	if err != nil {
		return nil, err
	}

	annotated := syncstate.Annotate(links)
	if n := syncstate.Mismatches(annotated); n > 0 {
		logrus.Warnf("%d links of %s disagree with the server ready_to_sync flag", n, course)
	}

	if filter.ReadyToSync == nil {
		return annotated, nil
	}

	filtered := annotated[:0]
	for _, link := range annotated {
		if link.OutOfSync == *filter.ReadyToSync {
			filtered = append(filtered, link)
		}
	}
	return filtered, nil
}

// Link returns the classified link of a downstream usage in course.
func (s *LinkService) Link(ctx context.Context, course, usageKey string) (*syncstate.AnnotatedLink, error) {
	links, err := s.ListLinks(ctx, course, repository.Filter{})
	if err != nil {
		return nil, err
	}

	for i := range links {
		if links[i].DownstreamUsageKey == usageKey {
			return &links[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrLinkNotFound, usageKey, course)
}

// Summaries returns the per-library summaries of course with staleness counts
// recomputed from the complete link set.
func (s *LinkService) Summaries(ctx context.Context, course string) ([]model.PublishableEntityLinkSummary, error) {
	server, err := s.source.Summaries(ctx, course)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	links, err := s.source.Links(ctx, course, repository.Filter{})
	if errors.Is(err, repository.ErrNotFound) {
		links = nil
	} else if err != nil {
		return nil, err
	}

	return syncstate.Reconcile(server, links), nil
}

// AlertState returns the staleness count of course and whether its notice is shown.
func (s *LinkService) AlertState(ctx context.Context, course string) (AlertState, error) {
	summaries, err := s.Summaries(ctx, course)
	if err != nil {
		return AlertState{}, err
	}

	count := syncstate.TotalReadyToSync(summaries)
	return AlertState{
		Count:   count,
		Visible: s.alerts.Visible(ctx, course, count),
	}, nil
}

// DismissAlert hides the notice of course until its staleness count changes.
func (s *LinkService) DismissAlert(ctx context.Context, course string) (AlertState, error) {
	state, err := s.AlertState(ctx, course)
	if err != nil {
		return AlertState{}, err
	}

	if err := s.alerts.Dismiss(ctx, course, state.Count); err != nil {
		return state, err
	}
	logrus.Infof("dismissed out of sync notice of %s at %d", course, state.Count)

	state.Visible = false
	return state, nil
}

// Accept brings a downstream usage up to date with its upstream. Accepting over
// local edits requires opts.OverwriteLocalChanges.
func (s *LinkService) Accept(ctx context.Context, course, usageKey string, opts AcceptOptions) error {
	link, err := s.Link(ctx, course, usageKey)
	if err != nil {
		return err
	}

	if link.Status == syncstate.StatusBroken {
		return fmt.Errorf("accept %s: %w", usageKey, model.ErrBrokenLink)
	}
	if syncstate.RequiresConfirmation(&link.PublishableEntityLink) && !opts.OverwriteLocalChanges {
		return fmt.Errorf("accept %s: %w", usageKey, ErrLocalChangesConflict)
	}

	return s.mutate(ctx, course, usageKey, "accept", s.writer.AcceptSync)
}

// Decline skips the current upstream version of a downstream usage.
func (s *LinkService) Decline(ctx context.Context, course, usageKey string) error {
	return s.mutate(ctx, course, usageKey, "decline", s.writer.DeclineSync)
}

// Unlink removes the link of a downstream usage.
func (s *LinkService) Unlink(ctx context.Context, course, usageKey string) error {
	return s.mutate(ctx, course, usageKey, "unlink", s.writer.Unlink)
}

// Invalidate drops every cached view of course.
func (s *LinkService) Invalidate(ctx context.Context, course string) error {
	return s.source.Invalidate(ctx, course)
}

func (s *LinkService) mutate(ctx context.Context, course, usageKey, op string, call func(ctx context.Context, usageKey string) error) error {
	err := call(ctx, usageKey)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	// a missing link means the cached listing is already stale
	if invalidateErr := s.source.Invalidate(ctx, course); invalidateErr != nil {
		logrus.Errorf("%s %s: failed to invalidate %s: %v", op, usageKey, course, invalidateErr)
		if err == nil {
			return fmt.Errorf("%w: %w", ErrCacheInvalidation, invalidateErr)
		}
	}
	if err != nil {
		return err
	}

	logrus.Infof("%s %s in %s", op, usageKey, course)
	return nil
}
