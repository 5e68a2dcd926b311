// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Scheduler fires a Job on a cron schedule. A tick that arrives while the previous run
// is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger *slog.Logger
	cancel context.CancelFunc

	// extra tracks runs started by RunNow.
	extra sync.WaitGroup
}

// Spec returns the cron expression for a schedule: expr when set, otherwise "@every interval".
func Spec(expr string, interval time.Duration) string {
	if expr != "" {
		return expr
	}
	return "@every " + interval.String()
}

// New validates spec and prepares a Scheduler. Nothing runs until Start.
func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	cronLogger := slogAdapter{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{cron: c, spec: spec, job: job, logger: logger}, nil
}

// Start registers the job and starts the cron loop. Jobs receive a context that is
// cancelled by Stop or when ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.cron.AddFunc(s.spec, func() {
		s.logger.Info("Running scheduled sync")
		s.job(ctx)
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("could not set up cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "schedule", s.spec)
	return nil
}

// RunNow runs the job once in the background, outside the schedule. Stop waits for it
// like it waits for scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.extra.Add(1)
	go func() {
		defer s.extra.Done()
		s.logger.Info("Performing initial sync on startup")
		s.job(ctx)
	}()
}

// Stop halts the schedule and waits for running jobs to finish, or for ctx to end,
// whichever comes first. A scheduled job still running when ctx ends is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	defer func() {
		if s.cancel != nil {
			s.cancel()
		}
	}()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.extra.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running sync: %w", ctx.Err())
	}
}

// slogAdapter satisfies cron.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
