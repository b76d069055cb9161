package retention

import (
	"context"
	"log/slog"
	"time"
)

// Runner is the job the scheduler triggers.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) (Report, error)
}

// Scheduler triggers the job once a day at a fixed UTC hour.
type Scheduler struct {
	job     Runner
	hour    int
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
	logger  *slog.Logger
	onStart bool
}

// SchedulerOption configures the Scheduler.
type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithSchedulerClock replaces the time source and timer, for tests.
func WithSchedulerClock(now func() time.Time, after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

// WithRunOnStart also runs the job immediately when Run starts.
func WithRunOnStart() SchedulerOption {
	return func(s *Scheduler) { s.onStart = true }
}

func NewScheduler(job Runner, hour int, opts ...SchedulerOption) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	s := &Scheduler{
		job:    job,
		hour:   hour,
		now:    time.Now,
		after:  time.After,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the first run time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled. A failed run is logged and the next
// one is still scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.onStart {
		s.runOnce(ctx)
	}
	for {
		next := s.NextRun(s.now())
		s.logger.InfoContext(ctx, "retention run scheduled", "at", next)
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "retention run panicked", "panic", r)
		}
	}()
	if _, err := s.job.RunOnce(ctx, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "retention run failed", "error", err)
	}
}
