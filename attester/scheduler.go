package attester

import (
	"context"
	"errors"
	"time"

	"github.com/screwyprof/attester/pkg/clock"
)

// DefaultScheduleInterval is how often the scheduler checks for a publishable day
const DefaultScheduleInterval = 30 * time.Minute

// Runner runs the batch for the previous UTC day
type Runner interface {
	RunLatest(ctx context.Context) (Result, error)
}

// Event represents a scheduler lifecycle event
// --------------------------------------------
type Event any

type SchedulerStarted struct {
	Interval time.Duration
}

type RunCompleted struct {
	Result Result
}

type RunSkipped struct {
	Reason error
}

type RunFailed struct {
	Err error
}

type SchedulerShutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}

// SchedulerOption configures the Scheduler
type SchedulerOption func(*Scheduler)

// WithSchedulerClock injects a custom Clock (e.g., for testing)
func WithSchedulerClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets how often a run is attempted
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// Scheduler attempts the daily run immediately and then on every interval. Attempts for a
// day that is already published or not yet ingested are reported as skipped.
type Scheduler struct {
	runner   Runner
	clock    Clock
	interval time.Duration
	events   chan Event
}

// NewScheduler constructs a Scheduler for runner
func NewScheduler(runner Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		clock:    clock.SystemClock{},
		interval: DefaultScheduleInterval,
		events:   make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduler and returns the events channel and done channel.
// Cancel the context to stop it, then wait on done.
func (s *Scheduler) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

func (s *Scheduler) run(ctx context.Context) {
	s.events <- SchedulerStarted{Interval: s.interval}
	s.attempt(ctx)

	for {
		select {
		case <-ctx.Done():
			s.events <- SchedulerShutdown{Reason: ctx.Err()}
			return
		case <-s.clock.After(s.interval):
			s.attempt(ctx)
		}
	}
}

func (s *Scheduler) attempt(ctx context.Context) {
	result, err := s.runner.RunLatest(ctx)
	switch {
	case err == nil:
		s.events <- RunCompleted{Result: result}
	case errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrDataNotReady), errors.Is(err, ErrRunInProgress):
		s.events <- RunSkipped{Reason: err}
	default:
		s.events <- RunFailed{Err: err}
	}
}
