package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	appLog "timetable/internal/log"
)

// Job is one refresh run. It receives a context bounded by the job timeout.
type Job func(ctx context.Context) error

// Scheduler runs a refresh job on a cron schedule.
type Scheduler struct {
	cronEngine *cron.Cron
	spec       string
	job        Job
	timeout    time.Duration
}

// New creates a Scheduler for spec (standard 5-field cron or a descriptor
// such as "@every 30s") evaluated in loc.
func New(spec string, loc *time.Location, job Job) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cronEngine: cron.New(cron.WithLocation(loc)),
		spec:       spec,
		job:        job,
		timeout:    30 * time.Second,
	}
}

// Start registers the job and starts the cron engine. The job also runs
// once immediately so the bar is not blank until the first tick.
func (s *Scheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.spec, s.RunNow); err != nil {
		return err
	}
	s.cronEngine.Start()
	appLog.Info("scheduler started", "spec", s.spec)
	s.RunNow()
	return nil
}

// RunNow executes the job synchronously and logs its error.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.job(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err, "spec", s.spec)
	}
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	appLog.Info("stopping scheduler")
	<-s.cronEngine.Stop().Done()
	appLog.Info("scheduler stopped")
}
