package pipeline

import (
	"context"
	"errors"
	"time"

	"newsfeed/internal/logger"
)

// Runner is anything the scheduler can trigger.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// NextRun returns the first hour:minute strictly after now, in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler triggers a Runner once a day at a fixed local time.
type Scheduler struct {
	runner Runner
	hour   int
	minute int
	log    *logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewScheduler(runner Runner, hour, minute int, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		runner: runner,
		hour:   hour,
		minute: minute,
		log:    log.With("component", "scheduler"),
		now:    time.Now,
		after:  time.After,
	}
}

// Run blocks until ctx is done. Failed runs are logged and the loop
// carries on with the next day.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.now()
		next := NextRun(now, s.hour, s.minute)
		wait := next.Sub(now)
		s.log.Info("next run scheduled", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-s.after(wait):
		}

		report, err := s.runner.Run(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.log.Warn("skipping scheduled run, another run is active")
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("scheduled run failed", "error", err)
		default:
			s.log.Info("scheduled run done", "stored", report.Stored(), "duplicates", report.Duplicates)
		}
	}
}
