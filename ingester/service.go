package ingester

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/pkg/subgraph"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPollInterval sets the polling interval
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithStartDate sets the first day to ingest when the store has no checkpoint yet
func WithStartDate(d time.Time) Option {
	return func(s *Service) { s.startDate = d }
}

// Service implements two-phase ingestion: backfill completed days then poll for new ones
// --------------------------------------------------------------------------------------
type Service struct {
	api          Client
	store        Store
	clock        Clock
	pollInterval time.Duration
	startDate    time.Time
	events       chan Event
}

// NewService constructs a Service with required dependencies and options.
// By default it uses the system clock, polls every 15 minutes and, without a checkpoint,
// starts from yesterday.
func NewService(api Client, store Store, opts ...Option) *Service {
	s := &Service{
		api:          api,
		store:        store,
		clock:        clock.SystemClock{},
		pollInterval: DefaultPollInterval,
		events:       make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the ingester and returns the events channel and done channel.
//
// Cancel the context to request shutdown, then wait on done:
//
//	events, done := service.Start(ctx)
//	defer func() {
//	  cancel()
//	  <-done
//	}()
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(s.events)
		defer close(done)
		s.run(ctx)
	}()
	return s.events, done
}

func (s *Service) run(ctx context.Context) {
	start := s.clock.Now()

	checkpoint, err := s.store.LastIngestedDate(ctx)
	if err != nil {
		s.events <- BackfillError{Err: fmt.Errorf("%w: %w", ErrCheckpointRetrieval, err)}
		return
	}

	s.events <- BackfillStarted{
		StartedAt:  start,
		Checkpoint: checkpoint,
		Until:      clock.Yesterday(start),
	}

	result, err := s.syncPending(ctx)
	if err != nil {
		s.events <- BackfillError{Err: err}
		return
	}

	s.events <- BackfillDone{
		TotalDays: result.Days,
		Duration:  s.clock.Now().Sub(start),
	}

	s.events <- PollingStarted{Interval: s.pollInterval}
	for {
		select {
		case <-ctx.Done():
			s.events <- PollingShutdown{Reason: ctx.Err()}
			return
		case <-s.clock.After(s.pollInterval):
			result, err := s.syncPending(ctx)
			if err != nil {
				s.events <- PollingError{Err: err}
				continue
			}
			s.events <- PollingSyncCompleted(result)
		}
	}
}

// syncPending ingests every completed day after the checkpoint, oldest first
func (s *Service) syncPending(ctx context.Context) (SyncResult, error) {
	checkpoint, err := s.store.LastIngestedDate(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", ErrCheckpointRetrieval, err)
	}

	result := SyncResult{Checkpoint: checkpoint}
	until := clock.Yesterday(s.clock.Now())

	for day := s.nextDay(checkpoint); !day.After(until); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		synced, err := s.syncDay(ctx, day)
		if err != nil {
			return result, err
		}

		result.Days++
		result.Checkpoint = day
		s.events <- synced
	}

	return result, nil
}

func (s *Service) nextDay(checkpoint time.Time) time.Time {
	if !checkpoint.IsZero() {
		return clock.Day(checkpoint).AddDate(0, 0, 1)
	}
	if !s.startDate.IsZero() {
		return clock.Day(s.startDate)
	}
	return clock.Yesterday(s.clock.Now())
}

// syncDay fetches the three streams for the day concurrently and saves them atomically
func (s *Service) syncDay(ctx context.Context, day time.Time) (DaySynced, error) {
	var (
		delegates []subgraph.DailyDelegate
		balances  []subgraph.DailyBalance
		subs      []subgraph.SubDelegation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		delegates, err = s.api.DailyDelegates(gctx, day)
		return err
	})
	g.Go(func() (err error) {
		balances, err = s.api.DailyBalances(gctx, day)
		return err
	})
	g.Go(func() (err error) {
		subs, err = s.api.SubDelegations(gctx, day, day.AddDate(0, 0, 1))
		return err
	})
	if err := g.Wait(); err != nil {
		return DaySynced{}, fmt.Errorf("%w: %s: %w", ErrAPIRequestFailed, day.Format(time.DateOnly), err)
	}

	d := Day{Date: day}
	var err error
	if d.Delegates, err = convertDelegates(day, delegates); err != nil {
		return DaySynced{}, err
	}
	if d.Balances, err = convertBalances(day, balances); err != nil {
		return DaySynced{}, err
	}
	if d.Subdelegations, err = convertSubdelegations(subs); err != nil {
		return DaySynced{}, err
	}

	if err := s.store.SaveDay(ctx, d); err != nil {
		return DaySynced{}, fmt.Errorf("%w: %s: %w", ErrSaveDayFailed, day.Format(time.DateOnly), err)
	}

	return DaySynced{
		Date:           day,
		Delegates:      len(d.Delegates),
		Balances:       len(d.Balances),
		Subdelegations: len(d.Subdelegations),
	}, nil
}
