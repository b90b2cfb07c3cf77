package attester

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/votingpower"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPublishers appends publishers; they run in the order given
func WithPublishers(p ...Publisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p...) }
}

// WithRankLimit sets how many delegates each ranking keeps
func WithRankLimit(n int) Option {
	return func(s *Service) { s.rankLimit = n }
}

// WithValidityFilter drops subdelegations outside their validity window at the end of the data day
func WithValidityFilter(enabled bool) Option {
	return func(s *Service) { s.filterValidity = enabled }
}

// WithMetrics reports runs to m
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRunID overrides run id generation (e.g., for testing)
func WithRunID(fn func() uuid.UUID) Option {
	return func(s *Service) { s.newRunID = fn }
}

// Service computes and publishes attestation runs
// -----------------------------------------------
type Service struct {
	feed           Feed
	checkpoints    CheckpointStore
	snapshots      SnapshotStore
	proxies        votingpower.ProxyResolver
	publishers     []Publisher
	clock          Clock
	rankLimit      int
	filterValidity bool
	metrics        *Metrics
	newRunID       func() uuid.UUID
	running        atomic.Bool
}

// NewService constructs a Service. Artifacts are published by each publisher in order;
// the checkpoint is written only after all of them succeeded.
func NewService(feed Feed, checkpoints CheckpointStore, snapshots SnapshotStore, proxies votingpower.ProxyResolver, opts ...Option) *Service {
	s := &Service{
		feed:        feed,
		checkpoints: checkpoints,
		snapshots:   snapshots,
		proxies:     proxies,
		clock:       clock.SystemClock{},
		rankLimit:   votingpower.DefaultRankLimit,
		newRunID:    uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LatestDate is the data day RunLatest works on: the previous UTC day
func (s *Service) LatestDate() time.Time {
	return clock.Yesterday(s.clock.Now())
}

// RunLatest runs the batch for the previous UTC day
func (s *Service) RunLatest(ctx context.Context) (Result, error) {
	return s.Run(ctx, s.LatestDate())
}

// Run computes and publishes the snapshot for date, then advances the checkpoint to it.
// Only one run executes at a time; a concurrent call fails with ErrRunInProgress.
// On any failure the checkpoint is left untouched.
func (s *Service) Run(ctx context.Context, date time.Time) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.observe(OutcomeSkipped)
		return Result{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	result, err := s.run(ctx, clock.Day(date))
	switch {
	case err == nil:
		s.metrics.observePublished(result)
	case errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrDataNotReady):
		s.metrics.observe(OutcomeSkipped)
	default:
		s.metrics.observe(OutcomeFailed)
	}
	return result, err
}

// Running reports whether a run is in progress
func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) run(ctx context.Context, date time.Time) (Result, error) {
	start := s.clock.Now()

	baseline, err := s.Baseline(ctx)
	if err != nil {
		return Result{}, err
	}
	if !baseline.Date.IsZero() && !date.After(baseline.Date) {
		return Result{}, fmt.Errorf("%w: %s (checkpoint %s)", ErrAlreadyPublished,
			date.Format(time.DateOnly), baseline.Date.Format(time.DateOnly))
	}

	ingested, err := s.feed.IngestedThrough(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFeedFailed, err)
	}
	if ingested.IsZero() || clock.Day(ingested).Before(date) {
		return Result{}, fmt.Errorf("%w: %s", ErrDataNotReady, date.Format(time.DateOnly))
	}

	result, err := s.Compute(ctx, date, baseline)
	if err != nil {
		return Result{}, err
	}
	result.RunID = s.newRunID()

	for _, p := range s.publishers {
		if err := p.Publish(ctx, result.Artifacts); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	}

	if err := s.checkpoints.SetCheckpoint(ctx, date, result.RunID); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCheckpointUpdate, err)
	}

	result.Duration = s.clock.Now().Sub(start)
	return result, nil
}

// Baseline returns the checkpoint, or the zero Checkpoint before the first publication
func (s *Service) Baseline(ctx context.Context) (Checkpoint, error) {
	checkpoint, err := s.checkpoints.Checkpoint(ctx)
	if errors.Is(err, ErrCheckpointNotFound) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %w", ErrCheckpointRetrieval, err)
	}
	checkpoint.Date = clock.Day(checkpoint.Date)
	return checkpoint, nil
}

// Compute builds the artifacts for date against the snapshots published for baseline
// (none when baseline is zero) without publishing anything. It has no side effects
// beyond reads, so the same inputs always yield the same artifacts.
//
// A baseline published by a run must still have its snapshots; an empty one fails
// with ErrSnapshotMissing instead of being diffed as a first run.
func (s *Service) Compute(ctx context.Context, date time.Time, baseline Checkpoint) (Result, error) {
	balances, err := s.feed.DirectBalances(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("%w: direct balances: %w", ErrFeedFailed, err)
	}
	subs, err := s.feed.Subdelegations(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("%w: subdelegations: %w", ErrFeedFailed, err)
	}
	if s.filterValidity {
		subs = votingpower.ActiveAt(subs, date.AddDate(0, 0, 1).Add(-time.Second))
	}

	proxies := votingpower.NewProxyCache(s.proxies)
	ledger, err := votingpower.Propagate(ctx, balances, subs, proxies)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPropagationFailed, err)
	}

	fetchedAt := s.clock.Now()
	artifacts := Artifacts{
		Date:      date,
		Baseline:  baseline.Date,
		FetchedAt: fetchedAt,
	}

	for _, p := range Pipelines() {
		ranked := votingpower.Rank(ledger, p.Score(), s.rankLimit, date, fetchedAt)

		var previous []votingpower.RankedDelegate
		if !baseline.Date.IsZero() {
			previous, err = s.snapshots.RankedDelegates(ctx, p, baseline.Date)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %s: %w", ErrBaselineRetrieval, p, err)
			}
			if len(previous) == 0 && baseline.Published() {
				return Result{}, fmt.Errorf("%w: %s@%s: %w", ErrBaselineRetrieval,
					p, baseline.Date.Format(time.DateOnly), ErrSnapshotMissing)
			}
		}

		artifacts.Pipelines = append(artifacts.Pipelines, PipelineArtifacts{
			Pipeline: p,
			Ranked:   ranked,
			Diff:     votingpower.Diff(previous, ranked, date),
		})
	}

	return Result{
		Artifacts:    artifacts,
		ProxyLookups: proxies.Calls(),
	}, nil
}
