// Package migration drives legacy-library migrations of a course from submission
// to a terminal task state.
//
// Per course the orchestrator moves through Idle → Submitting → Polling → Idle.
// At most one run is active per course; a second submission while one is active
// is rejected before the remote task endpoint is contacted.
package migration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/emrgen/linksync/internal/cache"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 2 * time.Second

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhasePolling
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "Submitting"
	case PhasePolling:
		return "Polling"
	}
	return "Idle"
}

type run struct {
	phase  Phase
	uuid   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// notified is only touched by the poll loop of the run.
	notified bool
}

type Option func(*Orchestrator)

// WithPollInterval sets the delay between two status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.interval = interval
		}
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

func WithHandleStore(handles HandleStore) Option {
	return func(o *Orchestrator) {
		if handles != nil {
			o.handles = handles
		}
	}
}

// WithInvalidator sets the cache dropped when a migration succeeds.
func WithInvalidator(invalidator cache.Invalidator) Option {
	return func(o *Orchestrator) {
		o.invalidator = invalidator
	}
}

// Orchestrator submits migration tasks and polls them to completion.
type Orchestrator struct {
	tasks       repository.MigrationAPI
	invalidator cache.Invalidator
	notifier    Notifier
	handles     HandleStore
	interval    time.Duration

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

func NewOrchestrator(tasks repository.MigrationAPI, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks:    tasks,
		notifier: NewLogNotifier(),
		handles:  NewMemoryHandleStore(),
		interval: DefaultPollInterval,
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newRun(phase Phase, uuid string) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		phase:  phase,
		uuid:   uuid,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Submit starts a migration of course and begins polling it. The submission is
// never retried; on failure the course returns to Idle and a submit_failed
// notification is emitted.
func (o *Orchestrator) Submit(ctx context.Context, course string) (*model.MigrationTask, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := o.runs[course]; ok {
		o.mu.Unlock()
		logrus.Warnf("migration of %s already active, ignoring submission", course)
		return nil, ErrTaskActive
	}
	r := newRun(PhaseSubmitting, "")
	o.runs[course] = r
	o.mu.Unlock()

	// a remembered handle means a task may still be running server-side
	if uuid, ok, err := o.handles.Handle(ctx, course); err != nil {
		logrus.Warnf("failed to read task handle of %s: %v", course, err)
	} else if ok {
		o.release(course, r)
		close(r.done)
		logrus.Warnf("migration %s of %s not observed to completion, resume it first", uuid, course)
		return nil, ErrTaskActive
	}

	logrus.Infof("migration of %s: Idle -> Submitting", course)
	task, err := o.tasks.SubmitMigration(ctx, course)
	if err != nil {
		o.release(course, r)
		logrus.Errorf("migration of %s: Submitting -> Idle: %v", course, err)
		o.notify(newNotification(NotificationSubmitFailed, course, "", nil, err))
		close(r.done)
		return nil, err
	}

	if err := o.handles.SaveHandle(ctx, course, task.UUID); err != nil {
		logrus.Warnf("failed to remember task handle %s of %s: %v", task.UUID, course, err)
	}

	o.mu.Lock()
	if r.ctx.Err() != nil {
		o.mu.Unlock()
		o.release(course, r)
		close(r.done)
		logrus.Infof("migration %s of %s submitted after polling was stopped", task.UUID, course)
		return task, nil
	}
	r.phase = PhasePolling
	r.uuid = task.UUID
	o.wg.Add(1)
	o.mu.Unlock()

	logrus.Infof("migration %s of %s: Submitting -> Polling", task.UUID, course)
	go o.poll(course, r)

	return task, nil
}

// Resume re-enters Polling for the remembered task of course. It reports
// whether a poll loop was started; it is a no-op when the course is already
// active or no task is remembered.
func (o *Orchestrator) Resume(ctx context.Context, course string) (bool, error) {
	o.mu.Lock()
	_, active := o.runs[course]
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	if active {
		return false, nil
	}

	uuid, ok, err := o.handles.Handle(ctx, course)
	if err != nil || !ok {
		return false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrClosed
	}
	if _, ok := o.runs[course]; ok {
		return false, nil
	}

	r := newRun(PhasePolling, uuid)
	o.runs[course] = r
	o.wg.Add(1)
	go o.poll(course, r)

	logrus.Infof("migration %s of %s: resumed polling", uuid, course)
	return true, nil
}

// Stop tears down the poll loop of course. The remote task keeps running and
// its handle stays remembered. Stopping an idle course is a no-op.
func (o *Orchestrator) Stop(course string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.runs[course]; ok {
		r.cancel()
	}
}

// Phase returns the current phase of course.
func (o *Orchestrator) Phase(course string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.runs[course]; ok {
		return r.phase
	}
	return PhaseIdle
}

// TaskUUID returns the uuid of the task polled for course, if any.
func (o *Orchestrator) TaskUUID(course string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.runs[course]; ok {
		return r.uuid
	}
	return ""
}

// Done returns a channel closed once the current run of course ends. For an
// idle course the channel is already closed.
func (o *Orchestrator) Done(course string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.runs[course]; ok {
		return r.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Active returns the courses that are submitting or polling.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	courses := make([]string, 0, len(o.runs))
	for course := range o.runs {
		courses = append(courses, course)
	}
	sort.Strings(courses)
	return courses
}

// Close stops every poll loop and waits for them to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for _, r := range o.runs {
		r.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
}

// release returns course to Idle if r is still its run. The done channel of r
// is closed by whoever owns the run once its notifications went out.
func (o *Orchestrator) release(course string, r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.runs[course] == r {
		delete(o.runs, course)
	}
	r.cancel()
}

func (o *Orchestrator) poll(course string, r *run) {
	defer o.wg.Done()
	defer close(r.done)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if o.check(course, r) {
			return
		}

		select {
		case <-r.ctx.Done():
			o.release(course, r)
			logrus.Infof("migration %s of %s: polling stopped", r.uuid, course)
			return
		case <-ticker.C:
		}
	}
}

// check fetches the task state once and reports whether the run has ended.
func (o *Orchestrator) check(course string, r *run) bool {
	task, err := o.tasks.GetTaskStatus(r.ctx, course, r.uuid)
	if err != nil {
		if r.ctx.Err() != nil {
			return false
		}
		if errors.Is(err, repository.ErrNotFound) {
			o.finish(course, r)
			logrus.Warnf("migration %s of %s: task no longer exists", r.uuid, course)
			o.notify(newNotification(NotificationFailed, course, r.uuid, nil, err))
			return true
		}
		logrus.Warnf("migration %s of %s: status check failed: %v", r.uuid, course, err)
		return false
	}

	switch task.State {
	case model.TaskStatePending, model.TaskStateInProgress:
		if !r.notified {
			r.notified = true
			o.notify(newNotification(NotificationInProgress, course, r.uuid, task, nil))
		}
		return false
	case model.TaskStateSucceeded:
		o.finish(course, r)
		logrus.Infof("migration %s of %s: Polling -> Succeeded", r.uuid, course)
		if o.invalidator != nil {
			if err := o.invalidator.Invalidate(context.Background(), course); err != nil {
				logrus.Errorf("migration %s of %s: failed to invalidate links: %v", r.uuid, course, err)
			}
		}
		o.notify(newNotification(NotificationSucceeded, course, r.uuid, task, nil))
		return true
	case model.TaskStateFailed, model.TaskStateCancelled:
		o.finish(course, r)
		logrus.Infof("migration %s of %s: Polling -> %s", r.uuid, course, task.State)
		var err error
		if task.Error != "" {
			err = errors.New(task.Error)
		}
		o.notify(newNotification(NotificationFailed, course, r.uuid, task, err))
		return true
	}

	logrus.Warnf("migration %s of %s: unknown task state %q", r.uuid, course, task.State)
	return false
}

// finish forgets the handle of a task observed in a terminal state and returns course to Idle.
func (o *Orchestrator) finish(course string, r *run) {
	if err := o.handles.ForgetHandle(context.Background(), course); err != nil {
		logrus.Warnf("failed to forget task handle %s of %s: %v", r.uuid, course, err)
	}
	o.release(course, r)
}

func (o *Orchestrator) notify(n Notification) {
	if err := o.notifier.Notify(context.Background(), n); err != nil {
		logrus.Errorf("failed to deliver %s notification of %s: %v", n.Kind, n.Course, err)
	}
}
