// Package jobs runs the background work of the reference backend on a cron schedule.
package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Job interface {
	Name() string
	Run()
}

type CronJob interface {
	Schedule() string
	Job
}

// TaskExecutor runs jobs on their schedule and never runs two instances of the same job at once.
type TaskExecutor struct {
	cron     *cron.Cron
	jobs     []Job
	cronJobs []CronJob
	running  mapset.Set[string]
	mu       sync.Mutex
}

func NewTaskExecutor(jobs []Job, cronJobs []CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:     cron.New(),
		jobs:     jobs,
		cronJobs: cronJobs,
		running:  mapset.NewThreadUnsafeSet[string](),
	}
}

// Run schedules every job and starts the cron in its own goroutine.
// Plain jobs run every second.
func (t *TaskExecutor) Run() error {
	for _, job := range t.cronJobs {
		if err := t.cron.AddFunc(job.Schedule(), t.wrap(job)); err != nil {
			logrus.Errorf("failed to add %s to cron: %v", job.Name(), err)
			return err
		}
	}

	for _, job := range t.jobs {
		if err := t.cron.AddFunc("@every 1s", t.wrap(job)); err != nil {
			return err
		}
	}

	t.cron.Start()
	return nil
}

func (t *TaskExecutor) wrap(job Job) func() {
	return func() {
		if !t.acquire(job.Name()) {
			logrus.Debugf("%s is already running", job.Name())
			return
		}
		defer t.release(job.Name())

		job.Run()
	}
}

func (t *TaskExecutor) acquire(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Contains(name) {
		return false
	}
	t.running.Add(name)
	return true
}

func (t *TaskExecutor) release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running.Remove(name)
}

// Running returns the names of the jobs currently executing.
func (t *TaskExecutor) Running() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running.ToSlice()
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all tasks")
	t.cron.Stop()
}
