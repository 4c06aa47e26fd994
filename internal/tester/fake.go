package tester

import (
	"context"
	"fmt"
	"sync"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/google/uuid"
)

// Operation names accepted by FakeRepository.Fail and FakeRepository.Calls.
const (
	OpListLinks     = "ListLinks"
	OpListSummaries = "ListSummaries"
	OpAcceptSync    = "AcceptSync"
	OpDeclineSync   = "DeclineSync"
	OpUnlink        = "Unlink"
	OpListLegacy    = "ListLegacyMigratable"
	OpSubmit        = "SubmitMigration"
	OpGetTaskStatus = "GetTaskStatus"
)

var _ repository.Repository = (*FakeRepository)(nil)

// FakeRepository is an in-memory repository.Repository.
//
// Task states are scripted: every GetTaskStatus call consumes the next state
// queued with ScriptTask and repeats the last one once the script is exhausted.
type FakeRepository struct {
	mu        sync.Mutex
	links     map[string][]model.PublishableEntityLink
	summaries map[string][]model.PublishableEntityLinkSummary
	legacy    map[string][]model.LegacyBlock
	scripts   map[string][]model.TaskState
	tasks     map[string]*model.MigrationTask
	errs      map[string][]error
	calls     map[string]int

	// BeforeListLinks runs, without the lock held, at the start of every ListLinks call.
	BeforeListLinks func(ctx context.Context)
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		links:     make(map[string][]model.PublishableEntityLink),
		summaries: make(map[string][]model.PublishableEntityLinkSummary),
		legacy:    make(map[string][]model.LegacyBlock),
		scripts:   make(map[string][]model.TaskState),
		tasks:     make(map[string]*model.MigrationTask),
		errs:      make(map[string][]error),
		calls:     make(map[string]int),
	}
}

// SetLinks replaces the links of a course.
func (f *FakeRepository) SetLinks(course string, links ...model.PublishableEntityLink) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.links[course] = append([]model.PublishableEntityLink(nil), links...)
}

// SetSummaries replaces the server-side summaries of a course.
func (f *FakeRepository) SetSummaries(course string, summaries ...model.PublishableEntityLinkSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.summaries[course] = append([]model.PublishableEntityLinkSummary(nil), summaries...)
}

// SetLegacy replaces the migratable legacy blocks of a course.
func (f *FakeRepository) SetLegacy(course string, blocks ...model.LegacyBlock) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.legacy[course] = append([]model.LegacyBlock(nil), blocks...)
}

// ScriptTask queues the states the next submitted task of course reports.
func (f *FakeRepository) ScriptTask(course string, states ...model.TaskState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scripts[course] = append([]model.TaskState(nil), states...)
}

// Fail makes the next calls of op return errs, one per call, in order.
func (f *FakeRepository) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[op] = append(f.errs[op], errs...)
}

// Calls returns how often op was invoked.
func (f *FakeRepository) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Link returns the current state of the link of a downstream usage.
func (f *FakeRepository) Link(usageKey string) (model.PublishableEntityLink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, links := range f.links {
		for _, link := range links {
			if link.DownstreamUsageKey == usageKey {
				return link, true
			}
		}
	}
	return model.PublishableEntityLink{}, false
}

// enter records a call of op and returns the error queued for it. Callers hold the lock.
func (f *FakeRepository) enter(op string) error {
	f.calls[op]++
	queued := f.errs[op]
	if len(queued) == 0 {
		return nil
	}
	f.errs[op] = queued[1:]
	return queued[0]
}

func (f *FakeRepository) ListLinks(ctx context.Context, course string, filter repository.Filter) ([]model.PublishableEntityLink, error) {
	if f.BeforeListLinks != nil {
		f.BeforeListLinks(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpListLinks); err != nil {
		return nil, err
	}

	links := make([]model.PublishableEntityLink, 0, len(f.links[course]))
	for _, link := range f.links[course] {
		if filter.ReadyToSync != nil && link.ReadyToSync != *filter.ReadyToSync {
			continue
		}
		if filter.UpstreamKey != "" && link.UpstreamKey != filter.UpstreamKey {
			continue
		}
		if filter.ItemType != "" && link.UpstreamType != filter.ItemType {
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

func (f *FakeRepository) ListSummaries(_ context.Context, course string) ([]model.PublishableEntityLinkSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpListSummaries); err != nil {
		return nil, err
	}
	return append([]model.PublishableEntityLinkSummary(nil), f.summaries[course]...), nil
}

func (f *FakeRepository) AcceptSync(_ context.Context, usageKey string) error {
	return f.mutate(OpAcceptSync, usageKey, func(link *model.PublishableEntityLink) error {
		if err := link.AcceptUpstream(); err != nil {
			return err
		}
		link.ReadyToSync = false
		return nil
	})
}

func (f *FakeRepository) DeclineSync(_ context.Context, usageKey string) error {
	return f.mutate(OpDeclineSync, usageKey, func(link *model.PublishableEntityLink) error {
		if err := link.DeclineUpstream(); err != nil {
			return err
		}
		link.ReadyToSync = false
		return nil
	})
}

func (f *FakeRepository) Unlink(_ context.Context, usageKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpUnlink); err != nil {
		return err
	}
	for course, links := range f.links {
		for i := range links {
			if links[i].DownstreamUsageKey == usageKey {
				f.links[course] = append(links[:i:i], links[i+1:]...)
				return nil
			}
		}
	}
	return notFound(OpUnlink, usageKey)
}

func (f *FakeRepository) mutate(op, usageKey string, apply func(link *model.PublishableEntityLink) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(op); err != nil {
		return err
	}
	for _, links := range f.links {
		for i := range links {
			if links[i].DownstreamUsageKey == usageKey {
				return apply(&links[i])
			}
		}
	}
	return notFound(op, usageKey)
}

func (f *FakeRepository) ListLegacyMigratable(_ context.Context, course string) ([]model.LegacyBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpListLegacy); err != nil {
		return nil, err
	}
	return append([]model.LegacyBlock(nil), f.legacy[course]...), nil
}

func (f *FakeRepository) SubmitMigration(_ context.Context, course string) (*model.MigrationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpSubmit); err != nil {
		return nil, err
	}

	task := &model.MigrationTask{UUID: uuid.NewString(), CourseKey: course}
	task.SetState(model.TaskStatePending)
	f.tasks[task.UUID] = task

	copied := *task
	return &copied, nil
}

func (f *FakeRepository) GetTaskStatus(_ context.Context, course, taskUUID string) (*model.MigrationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(OpGetTaskStatus); err != nil {
		return nil, err
	}

	task, ok := f.tasks[taskUUID]
	if !ok || task.CourseKey != course {
		return nil, notFound(OpGetTaskStatus, taskUUID)
	}
	if script := f.scripts[course]; len(script) > 0 {
		task.SetState(script[0])
		if len(script) > 1 {
			f.scripts[course] = script[1:]
		}
	}

	copied := *task
	return &copied, nil
}

// Task returns a submitted task.
func (f *FakeRepository) Task(taskUUID string) (model.MigrationTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[taskUUID]
	if !ok {
		return model.MigrationTask{}, false
	}
	return *task, true
}

func notFound(op, key string) error {
	return &repository.Error{Kind: repository.KindNotFound, Op: op, Message: fmt.Sprintf("%s does not exist", key)}
}

// Transient returns a transient network failure for op.
func Transient(op string) error {
	return &repository.Error{Kind: repository.KindTransientNetwork, Op: op, Message: "connection refused"}
}

// Link builds a link of course at the given versions. A negative upstream
// version produces a broken link.
func Link(course, usageKey, library string, upstream, synced, declined int64, modified bool) model.PublishableEntityLink {
	link := model.PublishableEntityLink{
		UpstreamKey:          "lb:" + library + ":html:" + usageKey,
		UpstreamType:         model.UpstreamTypeComponent,
		UpstreamContextKey:   "lib:" + library,
		UpstreamContextTitle: library,
		DownstreamUsageKey:   usageKey,
		DownstreamContextKey: course,
		DownstreamIsModified: modified,
	}
	if upstream >= 0 {
		link.UpstreamVersion = model.Int64(upstream)
	}
	if synced > 0 {
		link.VersionSynced = model.Int64(synced)
	}
	if declined > 0 {
		link.VersionDeclined = model.Int64(declined)
	}
	link.ReadyToSync = upstream > max(synced, declined)
	return link
}
