package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/store"
	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 10

var _ CronJob = (*MigrationRunner)(nil)

// MigrationRunner advances migration tasks. A Pending task is started, an
// InProgress task converts up to batch legacy blocks into links per run and
// succeeds once none are left.
type MigrationRunner struct {
	store    store.Store
	schedule string
	batch    int
}

func NewMigrationRunner(s store.Store, schedule string, batch int) *MigrationRunner {
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &MigrationRunner{
		store:    s,
		schedule: schedule,
		batch:    batch,
	}
}

func (m *MigrationRunner) Name() string {
	return "migration_runner"
}

func (m *MigrationRunner) Schedule() string {
	return m.schedule
}

func (m *MigrationRunner) Run() {
	ctx := context.Background()

	tasks, err := m.store.ListTasks(ctx, model.TaskStatePending, model.TaskStateInProgress)
	if err != nil {
		logrus.Errorf("failed to list migration tasks: %v", err)
		return
	}

	for i := range tasks {
		err := m.Step(ctx, &tasks[i])
		if errors.Is(err, store.ErrTaskConflict) {
			logrus.Infof("migration %s of %s changed meanwhile, skipping", tasks[i].UUID, tasks[i].CourseKey)
			continue
		}
		if err != nil {
			logrus.Errorf("migration %s of %s: %v", tasks[i].UUID, tasks[i].CourseKey, err)
		}
	}
}

// Step advances one task by a single transition.
func (m *MigrationRunner) Step(ctx context.Context, task *model.MigrationTask) error {
	switch task.State {
	case model.TaskStatePending:
		blocks, err := m.store.ListLegacyBlocks(ctx, task.CourseKey)
		if err != nil {
			return err
		}
		task.SetState(model.TaskStateInProgress)
		task.TotalSteps = len(blocks)
		if err := m.store.UpdateTask(ctx, task, model.TaskStatePending); err != nil {
			return err
		}
		logrus.Infof("migration %s of %s started with %d blocks", task.UUID, task.CourseKey, len(blocks))
		return nil
	case model.TaskStateInProgress:
		return m.convert(ctx, task)
	}
	return nil
}

func (m *MigrationRunner) convert(ctx context.Context, task *model.MigrationTask) error {
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		blocks, err := tx.ListLegacyBlocks(ctx, task.CourseKey)
		if err != nil {
			return err
		}

		if len(blocks) == 0 {
			task.SetState(model.TaskStateSucceeded)
			if err := tx.UpdateTask(ctx, task, model.TaskStateInProgress); err != nil {
				return err
			}
			logrus.Infof("migration %s of %s succeeded", task.UUID, task.CourseKey)
			return nil
		}

		if len(blocks) > m.batch {
			blocks = blocks[:m.batch]
		}
		for i := range blocks {
			if err := tx.CreateLink(ctx, blocks[i].IntoLink()); err != nil {
				return fmt.Errorf("%w: %s: %w", errConversion, blocks[i].UsageKey, err)
			}
			if err := tx.MarkLegacyMigrated(ctx, blocks[i].ID); err != nil {
				return err
			}
		}

		// a task cancelled meanwhile rolls the batch back
		task.CompletedSteps += len(blocks)
		return tx.UpdateTask(ctx, task, model.TaskStateInProgress)
	})
	if !errors.Is(err, errConversion) {
		return err
	}

	task.SetState(model.TaskStateFailed)
	task.Error = err.Error()
	logrus.Warnf("migration %s of %s failed: %v", task.UUID, task.CourseKey, err)
	return m.store.UpdateTask(ctx, task, model.TaskStateInProgress)
}

var errConversion = errors.New("failed to convert legacy block")

var _ CronJob = (*TaskReaper)(nil)

// TaskReaper cancels tasks that made no progress within staleAfter.
type TaskReaper struct {
	store      store.Store
	schedule   string
	staleAfter time.Duration
}

func NewTaskReaper(s store.Store, schedule string, staleAfter time.Duration) *TaskReaper {
	return &TaskReaper{
		store:      s,
		schedule:   schedule,
		staleAfter: staleAfter,
	}
}

func (r *TaskReaper) Name() string {
	return "task_reaper"
}

func (r *TaskReaper) Schedule() string {
	return r.schedule
}

func (r *TaskReaper) Run() {
	if _, err := r.Reap(context.Background(), time.Now()); err != nil {
		logrus.Errorf("failed to reap stale migration tasks: %v", err)
	}
}

// Reap cancels the tasks that were last updated before now minus staleAfter.
func (r *TaskReaper) Reap(ctx context.Context, now time.Time) (int, error) {
	tasks, err := r.store.ListStaleTasks(ctx, now.Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for i := range tasks {
		from := tasks[i].State
		tasks[i].SetState(model.TaskStateCancelled)
		tasks[i].Error = "no progress within " + r.staleAfter.String()
		err := r.store.UpdateTask(ctx, &tasks[i], from)
		if errors.Is(err, store.ErrTaskConflict) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		reaped++
		logrus.Warnf("cancelled stale migration %s of %s", tasks[i].UUID, tasks[i].CourseKey)
	}

	return reaped, nil
}
