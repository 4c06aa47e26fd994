package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/repository"
	"github.com/emrgen/linksync/internal/store"
	"github.com/emrgen/linksync/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const course = "course-v1:OpenedX+DemoX+2024"

func seed(t *testing.T, s store.Store, usageKeys ...string) *model.MigrationTask {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveCourse(ctx, &model.Course{Key: course, Title: "Demo"}))
	for _, key := range usageKeys {
		require.NoError(t, s.CreateLegacyBlock(ctx, &model.LegacyBlock{
			CourseKey:            course,
			UsageKey:             key,
			UpstreamKey:          "lb:lib1:html:" + key,
			UpstreamContextKey:   "lib:lib1",
			UpstreamContextTitle: "Library One",
			UpstreamVersion:      4,
		}))
	}

	task := &model.MigrationTask{UUID: uuid.NewString(), CourseKey: course}
	task.SetState(model.TaskStatePending)
	require.NoError(t, s.CreateTask(ctx, task))
	return task
}

func TestMigrationRunner_Step(t *testing.T) {
	s := store.NewGormStore(tester.TestDB(t))
	task := seed(t, s, "block-v1:a", "block-v1:b", "block-v1:c")
	runner := NewMigrationRunner(s, "@every 1s", 2)
	ctx := context.Background()

	require.NoError(t, runner.Step(ctx, task))
	assert.Equal(t, model.TaskStateInProgress, task.State)
	assert.Equal(t, "In Progress", task.StateText)
	assert.Equal(t, 3, task.TotalSteps)

	require.NoError(t, runner.Step(ctx, task))
	assert.Equal(t, 2, task.CompletedSteps)
	require.NoError(t, runner.Step(ctx, task))
	assert.Equal(t, 3, task.CompletedSteps)
	assert.Equal(t, model.TaskStateInProgress, task.State)

	require.NoError(t, runner.Step(ctx, task))
	assert.Equal(t, model.TaskStateSucceeded, task.State)

	stored, err := s.GetTask(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateSucceeded, stored.State)

	links, err := s.ListLinks(ctx, course, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, links, 3)
	for _, link := range links {
		assert.False(t, link.ReadyToSync)
		assert.Equal(t, int64(4), model.Deref(link.VersionSynced))
	}

	blocks, err := s.ListLegacyBlocks(ctx, course)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestMigrationRunner_ConversionFailure(t *testing.T) {
	s := store.NewGormStore(tester.TestDB(t))
	task := seed(t, s, "block-v1:a")
	ctx := context.Background()

	taken := tester.Link(course, "block-v1:a", "lib1", 1, 1, 0, false)
	require.NoError(t, s.CreateLink(ctx, &taken))

	runner := NewMigrationRunner(s, "@every 1s", 0)
	runner.Run()
	runner.Run()

	stored, err := s.GetTask(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateFailed, stored.State)
	assert.Contains(t, stored.Error, "block-v1:a")

	blocks, err := s.ListLegacyBlocks(ctx, course)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
}

func TestTaskReaper(t *testing.T) {
	s := store.NewGormStore(tester.TestDB(t))
	task := seed(t, s)
	reaper := NewTaskReaper(s, "@every 1m", time.Minute)
	ctx := context.Background()

	n, err := reaper.Reap(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = reaper.Reap(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := s.GetTask(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCancelled, stored.State)
}

func TestMigrationRunner_DoesNotOverrideCancellation(t *testing.T) {
	s := store.NewGormStore(tester.TestDB(t))
	task := seed(t, s, "block-v1:a", "block-v1:b")
	runner := NewMigrationRunner(s, "@every 1s", 1)
	reaper := NewTaskReaper(s, "@every 1m", time.Minute)
	ctx := context.Background()

	require.NoError(t, runner.Step(ctx, task))
	require.Equal(t, model.TaskStateInProgress, task.State)

	n, err := reaper.Reap(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the runner still holds the in-progress copy
	err = runner.Step(ctx, task)
	assert.ErrorIs(t, err, store.ErrTaskConflict)

	stored, err := s.GetTask(ctx, course, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCancelled, stored.State)
	assert.Equal(t, 0, stored.CompletedSteps)

	links, err := s.ListLinks(ctx, course, repository.Filter{})
	require.NoError(t, err)
	assert.Empty(t, links)

	blocks, err := s.ListLegacyBlocks(ctx, course)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	// cancelled tasks are neither advanced nor reaped again
	runner.Run()
	n, err = reaper.Reap(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type countingJob struct {
	runs atomic.Int32
}

func (c *countingJob) Name() string     { return "counting" }
func (c *countingJob) Schedule() string { return "@every 1s" }
func (c *countingJob) Run()             { c.runs.Add(1) }

func TestTaskExecutor(t *testing.T) {
	job := &countingJob{}
	executor := NewTaskExecutor(nil, []CronJob{job})
	require.NoError(t, executor.Run())
	defer executor.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestTaskExecutor_SkipsRunningJob(t *testing.T) {
	executor := NewTaskExecutor(nil, nil)

	assert.True(t, executor.acquire("counting"))
	assert.False(t, executor.acquire("counting"))
	assert.Equal(t, []string{"counting"}, executor.Running())

	executor.release("counting")
	assert.True(t, executor.acquire("counting"))
}

func TestTaskExecutor_InvalidSchedule(t *testing.T) {
	executor := NewTaskExecutor(nil, []CronJob{NewTaskReaper(nil, "every now and then", time.Minute)})
	assert.Error(t, executor.Run())
}
