// Package linksync keeps downstream course content in step with the upstream
// library entities it was copied from.
//
// A Client reads link listings and per-library summaries through a keyed,
// coalescing cache, classifies every link against its upstream version,
// applies accept/decline/unlink decisions and drives bulk migrations of legacy
// library references.
package linksync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/emrgen/linksync/internal/cache"
	"github.com/emrgen/linksync/internal/compress"
	"github.com/emrgen/linksync/internal/config"
	"github.com/emrgen/linksync/internal/migration"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/queue"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/service"
	"github.com/emrgen/linksync/internal/store"
	"github.com/emrgen/linksync/internal/syncstate"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type (
	Config        = config.Config
	Link          = model.PublishableEntityLink
	Summary       = model.PublishableEntityLinkSummary
	LegacyBlock   = model.LegacyBlock
	MigrationTask = model.MigrationTask
	AnnotatedLink = syncstate.AnnotatedLink
	Filter        = repository.Filter
	AlertState    = service.AlertState
	AcceptOptions = service.AcceptOptions
	Notification  = migration.Notification
	Notifier      = migration.Notifier
	Phase         = migration.Phase
)

// LoadConfig reads linksync.yaml, .env and LINKSYNC_ environment variables.
func LoadConfig() (*Config, error) {
	return config.Load(nil)
}

type options struct {
	repo       repository.Repository
	httpClient *http.Client
	notifiers  []migration.Notifier
}

type Option func(*options)

// WithRepository replaces the HTTP link repository.
func WithRepository(repo repository.Repository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// WithHTTPClient sets the client used to reach the link endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithNotifier adds a receiver of migration notifications.
func WithNotifier(notifier Notifier) Option {
	return func(o *options) {
		o.notifiers = append(o.notifiers, notifier)
	}
}

// Client is the entry point for link sync operations on courses.
type Client struct {
	repo         repository.Repository
	links        *service.LinkService
	orchestrator *migration.Orchestrator

	closers []func() error
}

func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	c.repo = o.repo
	if c.repo == nil {
		httpClient := o.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.API.Timeout}
		}
		c.repo = repository.NewHTTPClient(cfg.API.BaseURL, cfg.API.Token, httpClient)
	}

	linkCache, err := c.newLinkCache(cfg)
	if err != nil {
		return nil, err
	}

	dismissals, handles, err := c.newLocalState(cfg)
	if err != nil {
		return nil, err
	}

	notifiers := migration.MultiNotifier{migration.NewLogNotifier()}
	if cfg.Kafka.Brokers != "" {
		producer, err := queue.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		kafkaNotifier := queue.NewKafkaNotifier(producer, cfg.Kafka.Topic)
		c.closers = append(c.closers, func() error {
			kafkaNotifier.Close()
			return nil
		})
		notifiers = append(notifiers, kafkaNotifier)
	}
	notifiers = append(notifiers, o.notifiers...)

	c.links = service.NewLinkService(linkCache, c.repo, syncstate.NewAlerts(dismissals))
	c.orchestrator = migration.NewOrchestrator(c.repo,
		migration.WithPollInterval(cfg.Migration.PollInterval),
		migration.WithInvalidator(linkCache),
		migration.WithHandleStore(handles),
		migration.WithNotifier(notifiers),
	)
	c.closers = append(c.closers, func() error {
		c.orchestrator.Close()
		return nil
	})

	ok = true
	return c, nil
}

func (c *Client) newLinkCache(cfg *Config) (*cache.LinkCache, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryLinkCache(c.repo, cfg.Cache.TTL), nil
	}

	codec, err := compress.New(cfg.Cache.Compression)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	c.closers = append(c.closers, rdb.Close)
	return cache.NewRedisLinkCache(c.repo, rdb, codec, cfg.Cache.TTL), nil
}

func (c *Client) newLocalState(cfg *Config) (syncstate.DismissalStore, migration.HandleStore, error) {
	if cfg.State.Path == "" {
		return syncstate.NewMemoryDismissalStore(), migration.NewMemoryHandleStore(), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755); err != nil {
		return nil, nil, err
	}
	db, err := store.Open("sqlite", cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		c.closers = append(c.closers, sqlDB.Close)
	}

	local := store.NewGormLocalStore(db)
	if err := local.Migrate(); err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

// Links returns the classified links of a course.
func (c *Client) Links(ctx context.Context, course string, filter Filter) ([]AnnotatedLink, error) {
	return c.links.ListLinks(ctx, course, filter)
}

// Link returns the classified link of one downstream usage.
func (c *Client) Link(ctx context.Context, course, usageKey string) (*AnnotatedLink, error) {
	return c.links.Link(ctx, course, usageKey)
}

// Summaries returns one row per upstream library referenced by the course.
func (c *Client) Summaries(ctx context.Context, course string) ([]Summary, error) {
	return c.links.Summaries(ctx, course)
}

func (c *Client) AlertState(ctx context.Context, course string) (AlertState, error) {
	return c.links.AlertState(ctx, course)
}

func (c *Client) DismissAlert(ctx context.Context, course string) (AlertState, error) {
	return c.links.DismissAlert(ctx, course)
}

func (c *Client) Accept(ctx context.Context, course, usageKey string, opts AcceptOptions) error {
	return c.links.Accept(ctx, course, usageKey, opts)
}

func (c *Client) Decline(ctx context.Context, course, usageKey string) error {
	return c.links.Decline(ctx, course, usageKey)
}

func (c *Client) Unlink(ctx context.Context, course, usageKey string) error {
	return c.links.Unlink(ctx, course, usageKey)
}

// Refresh drops every cached view of the course.
func (c *Client) Refresh(ctx context.Context, course string) error {
	return c.links.Invalidate(ctx, course)
}

// LegacyBlocks lists the legacy library references of a course that can be migrated.
func (c *Client) LegacyBlocks(ctx context.Context, course string) ([]LegacyBlock, error) {
	blocks, err := c.repo.ListLegacyMigratable(ctx, course)
	if errors.Is(err, repository.ErrNotFound) {
		return []LegacyBlock{}, nil
	}
	return blocks, err
}

// Migrate submits a bulk migration of the course and polls it in the background.
func (c *Client) Migrate(ctx context.Context, course string) (*MigrationTask, error) {
	return c.orchestrator.Submit(ctx, course)
}

// ResumeMigration resumes polling the remembered migration of the course.
func (c *Client) ResumeMigration(ctx context.Context, course string) (bool, error) {
	return c.orchestrator.Resume(ctx, course)
}

// StopPolling stops observing the migration of the course. The task keeps running remotely.
func (c *Client) StopPolling(course string) {
	c.orchestrator.Stop(course)
}

func (c *Client) MigrationPhase(course string) Phase {
	return c.orchestrator.Phase(course)
}

// MigrationDone returns a channel closed when the current migration run of the course ends.
func (c *Client) MigrationDone(course string) <-chan struct{} {
	return c.orchestrator.Done(course)
}

// TaskStatus fetches the current state of a migration task.
func (c *Client) TaskStatus(ctx context.Context, course, uuid string) (*MigrationTask, error) {
	return c.repo.GetTaskStatus(ctx, course, uuid)
}

// Close stops every poll loop and releases the cache and local state.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil

	if err := errors.Join(errs...); err != nil {
		logrus.Warnf("failed to close client: %v", err)
		return err
	}
	return nil
}
