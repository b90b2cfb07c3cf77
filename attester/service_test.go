package attester_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/votingpower"
)

var (
	now   = time.Date(2024, 12, 4, 9, 30, 0, 0, time.UTC)
	dec2  = time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)
	dec3  = dec2.AddDate(0, 0, 1)
	runID = uuid.MustParse("0b9c3c1e-6d1f-4d7e-9a8c-3b1d2f6e7a10")

	alice = addr(0xa1)
	bob   = addr(0xb0)
	carol = addr(0xc0)
	dave  = addr(0xd0)
)

// TestServiceRunBehavior tests the publish-then-checkpoint flow of a run
func TestServiceRunBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it publishes yesterday and advances the checkpoint", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 500))
		checkpoints := checkpointAt(dec2)
		publisher := &recordingPublisher{}
		svc := serviceFor(feed, checkpoints, emptySnapshots(), attester.WithPublishers(publisher))

		// Act
		result, err := svc.RunLatest(t.Context())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, dec3, result.Date)
		assert.Equal(t, dec2, result.Baseline)
		assert.Equal(t, runID, result.RunID)
		require.Len(t, publisher.published(), 1)
		assertCheckpointSetTo(t, checkpoints, dec3)
	})

	t.Run("it takes the latest date from its clock", func(t *testing.T) {
		t.Parallel()

		// Arrange
		svc := serviceFor(feedWithBalances(dec3), checkpointMissing(), emptySnapshots())

		// Act
		latest := svc.LatestDate()

		// Assert
		assert.Equal(t, dec3, latest)
	})

	t.Run("it treats a missing checkpoint as the first run and issues every delegate", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 500))
		checkpoints := checkpointMissing()
		snapshots := emptySnapshots()
		svc := serviceFor(feed, checkpoints, snapshots)

		// Act
		result, err := svc.Run(t.Context(), dec3)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Baseline.IsZero())
		for _, pa := range result.Pipelines {
			assert.Equal(t, []votingpower.Address{alice, bob}, pa.Diff.Issue, "pipeline %s", pa.Pipeline)
			assert.Empty(t, pa.Diff.Revoke, "pipeline %s", pa.Pipeline)
		}
		assert.Empty(t, snapshots.requested(), "No baseline should be loaded on the first run")
	})

	t.Run("it diffs against the snapshot published for the checkpoint", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 500))
		snapshots := snapshotsOf(map[attester.Pipeline][]votingpower.RankedDelegate{
			attester.WithoutPartialVP: ranked(dec2, alice, carol),
			attester.WithPartialVP:    ranked(dec2, alice, bob),
		})
		svc := serviceFor(feed, publishedAt(dec2), snapshots)

		// Act
		result, err := svc.Run(t.Context(), dec3)

		// Assert
		require.NoError(t, err)
		direct, _ := result.For(attester.WithoutPartialVP)
		assert.Equal(t, []votingpower.Address{bob}, direct.Diff.Issue)
		assert.Equal(t, []votingpower.Address{carol}, direct.Diff.Revoke)
		partial, _ := result.For(attester.WithPartialVP)
		assert.True(t, partial.Diff.Empty())
		assert.Equal(t, []string{"without_partial_vp@2024-12-02", "with_partial_vp@2024-12-02"}, snapshots.requested())
	})

	t.Run("it fails when the snapshot of a published checkpoint is gone", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := publishedAt(dec2)
		publisher := &recordingPublisher{}
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 1000)), checkpoints, emptySnapshots(),
			attester.WithPublishers(publisher),
		)

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrBaselineRetrieval)
		assert.ErrorIs(t, err, attester.ErrSnapshotMissing)
		assert.Empty(t, publisher.published())
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it issues every delegate after a seeded checkpoint without snapshots", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 500))
		snapshots := emptySnapshots()
		svc := serviceFor(feed, checkpointAt(dec2), snapshots)

		// Act
		result, err := svc.Run(t.Context(), dec3)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, dec2, result.Baseline)
		direct, _ := result.For(attester.WithoutPartialVP)
		assert.Equal(t, []votingpower.Address{alice, bob}, direct.Diff.Issue)
		assert.Len(t, snapshots.requested(), 2)
	})

	t.Run("it refuses dates at or before the checkpoint", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := checkpointAt(dec3)
		publisher := &recordingPublisher{}
		svc := serviceFor(feedWithBalances(dec3), checkpoints, emptySnapshots(), attester.WithPublishers(publisher))

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrAlreadyPublished)
		assert.Empty(t, publisher.published())
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it refuses dates the warehouse has not ingested", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := checkpointAt(dec2)
		svc := serviceFor(feedWithBalances(dec2), checkpoints, emptySnapshots())

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrDataNotReady)
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it fails on checkpoint read errors other than not found", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := checkpointAt(dec2)
		checkpoints.readErr = errors.New("connection reset")
		svc := serviceFor(feedWithBalances(dec3), checkpoints, emptySnapshots())

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrCheckpointRetrieval)
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it leaves the checkpoint untouched when proxy resolution fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000))
		feed.subs = []votingpower.Subdelegation{relative(alice, dave, 50000)}
		checkpoints := checkpointAt(dec2)
		failing := votingpower.ProxyResolverFunc(func(context.Context, votingpower.Address) (votingpower.Address, error) {
			return "", errors.New("rpc unavailable")
		})
		svc := attester.NewService(feed, checkpoints, emptySnapshots(), failing,
			attester.WithClock(clock.Fixed(now)),
		)

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrPropagationFailed)
		assert.ErrorIs(t, err, votingpower.ErrProxyResolution)
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it stops at the first failing publisher and keeps the checkpoint", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := checkpointAt(dec2)
		failing := attester.PublisherFunc(func(context.Context, attester.Artifacts) error {
			return errors.New("disk full")
		})
		later := &recordingPublisher{}
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 1)), checkpoints, emptySnapshots(),
			attester.WithPublishers(failing, later),
		)

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrPublishFailed)
		assert.Empty(t, later.published())
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it reports a failed checkpoint write", func(t *testing.T) {
		t.Parallel()

		// Arrange
		checkpoints := checkpointAt(dec2)
		checkpoints.writeErr = errors.New("read-only transaction")
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 1)), checkpoints, emptySnapshots())

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrCheckpointUpdate)
	})

	t.Run("it rejects a second run while one is in progress", func(t *testing.T) {
		t.Parallel()

		// Arrange
		entered := make(chan struct{})
		release := make(chan struct{})
		blocking := attester.PublisherFunc(func(context.Context, attester.Artifacts) error {
			close(entered)
			<-release
			return nil
		})
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 1)), checkpointAt(dec2), emptySnapshots(),
			attester.WithPublishers(blocking),
		)

		firstErr := make(chan error, 1)
		go func() {
			_, err := svc.Run(t.Context(), dec3)
			firstErr <- err
		}()
		<-entered

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		assert.ErrorIs(t, err, attester.ErrRunInProgress)
		assert.True(t, svc.Running())
		close(release)
		require.NoError(t, <-firstErr)
		assert.False(t, svc.Running())
	})
}

// TestServiceComputeBehavior tests the side-effect free part of a run
func TestServiceComputeBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it returns identical artifacts for identical inputs", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 500), balance(carol, 300))
		feed.subs = []votingpower.Subdelegation{relative(alice, dave, 50000)}
		checkpoints := checkpointAt(dec2)
		svc := serviceFor(feed, checkpoints, emptySnapshots())

		// Act
		first, err1 := svc.Compute(t.Context(), dec3, attester.Checkpoint{Date: dec2})
		second, err2 := svc.Compute(t.Context(), dec3, attester.Checkpoint{Date: dec2})

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, first, second)
		assertCheckpointUntouched(t, checkpoints)
	})

	t.Run("it ranks each pipeline by its own score", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000), balance(bob, 800))
		feed.subs = []votingpower.Subdelegation{relative(alice, dave, 50000)}
		svc := serviceFor(feed, checkpointMissing(), emptySnapshots())

		// Act
		result, err := svc.Compute(t.Context(), dec3, attester.Checkpoint{})

		// Assert
		require.NoError(t, err)
		direct, _ := result.For(attester.WithoutPartialVP)
		assertRanking(t, direct.Ranked, alice, 1000, bob, 800, dave, 0)
		partial, _ := result.For(attester.WithPartialVP)
		assertRanking(t, partial.Ranked, bob, 1600, alice, 1500, dave, 0)
		assert.Equal(t, "1000", partial.Ranked[1].DirectVotingPower.String())
		assert.Equal(t, "0", partial.Ranked[1].AdvancedVotingPower.String())
		assert.Equal(t, "500", partial.Ranked[2].AdvancedVotingPower.String())
	})

	t.Run("it keeps at most the configured number of delegates", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 3), balance(bob, 2), balance(carol, 1))
		svc := serviceFor(feed, checkpointMissing(), emptySnapshots(), attester.WithRankLimit(2))

		// Act
		result, err := svc.Compute(t.Context(), dec3, attester.Checkpoint{})

		// Assert
		require.NoError(t, err)
		for _, pa := range result.Pipelines {
			assert.Len(t, pa.Ranked, 2, "pipeline %s", pa.Pipeline)
		}
	})

	t.Run("it drops expired subdelegations when the validity filter is on", func(t *testing.T) {
		t.Parallel()

		// Arrange
		expired := relative(alice, dave, 100000)
		expired.NotValidAfter = dec3.Add(-time.Hour).Unix()
		feed := feedWithBalances(dec3, balance(alice, 1000))
		feed.subs = []votingpower.Subdelegation{expired}
		svc := serviceFor(feed, checkpointMissing(), emptySnapshots(), attester.WithValidityFilter(true))

		// Act
		result, err := svc.Compute(t.Context(), dec3, attester.Checkpoint{})

		// Assert
		require.NoError(t, err)
		partial, _ := result.For(attester.WithPartialVP)
		assertRanking(t, partial.Ranked, alice, 2000)
		assert.Zero(t, result.ProxyLookups)
	})

	t.Run("it resolves each owner's proxy once per run", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3, balance(alice, 1000))
		feed.subs = []votingpower.Subdelegation{relative(alice, bob, 10000), relative(alice, carol, 10000)}
		svc := serviceFor(feed, checkpointMissing(), emptySnapshots())

		// Act
		result, err := svc.Compute(t.Context(), dec3, attester.Checkpoint{})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 1, result.ProxyLookups)
	})

	t.Run("it wraps feed errors", func(t *testing.T) {
		t.Parallel()

		// Arrange
		feed := feedWithBalances(dec3)
		feed.err = errors.New("relation does not exist")
		svc := serviceFor(feed, checkpointMissing(), emptySnapshots())

		// Act
		_, err := svc.Compute(t.Context(), dec3, attester.Checkpoint{})

		// Assert
		assert.ErrorIs(t, err, attester.ErrFeedFailed)
	})
}

// TestServiceMetrics tests run outcome reporting
func TestServiceMetrics(t *testing.T) {
	t.Parallel()

	t.Run("it counts runs by outcome", func(t *testing.T) {
		t.Parallel()

		// Arrange
		reg := prometheus.NewRegistry()
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 1)), checkpointAt(dec2), emptySnapshots(),
			attester.WithMetrics(attester.NewMetrics(reg)),
		)

		// Act
		_, err := svc.Run(t.Context(), dec3)
		require.NoError(t, err)
		_, err = svc.Run(t.Context(), dec3)
		require.ErrorIs(t, err, attester.ErrAlreadyPublished)

		// Assert
		expected := `
# HELP attester_runs_total Attestation runs by outcome.
# TYPE attester_runs_total counter
attester_runs_total{outcome="published"} 1
attester_runs_total{outcome="skipped"} 1
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "attester_runs_total"))
	})

	t.Run("it reports issued attestations per pipeline", func(t *testing.T) {
		t.Parallel()

		// Arrange
		reg := prometheus.NewRegistry()
		svc := serviceFor(feedWithBalances(dec3, balance(alice, 2), balance(bob, 1)), checkpointMissing(), emptySnapshots(),
			attester.WithMetrics(attester.NewMetrics(reg)),
		)

		// Act
		_, err := svc.Run(t.Context(), dec3)

		// Assert
		require.NoError(t, err)
		expected := `
# HELP attester_attestations_issued_total Delegates that entered a published ranking.
# TYPE attester_attestations_issued_total counter
attester_attestations_issued_total{pipeline="with_partial_vp"} 2
attester_attestations_issued_total{pipeline="without_partial_vp"} 2
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "attester_attestations_issued_total"))
	})
}

// Domain-specific test builders

func addr(n int) votingpower.Address {
	return votingpower.MustParseAddress(fmt.Sprintf("0x%040x", n))
}

func balance(a votingpower.Address, amount int64) votingpower.DirectBalance {
	return votingpower.DirectBalance{Delegate: a, DirectVotingPower: big.NewInt(amount), Date: dec3}
}

func relative(from, to votingpower.Address, allowance int64) votingpower.Subdelegation {
	return votingpower.Subdelegation{
		From:          from,
		To:            to,
		AllowanceType: votingpower.Relative,
		Allowance:     big.NewInt(allowance),
		Date:          dec3,
	}
}

func ranked(date time.Time, delegates ...votingpower.Address) []votingpower.RankedDelegate {
	out := make([]votingpower.RankedDelegate, len(delegates))
	for i, d := range delegates {
		out[i] = votingpower.RankedDelegate{Rank: i + 1, Delegate: d, Date: date}
	}
	return out
}

func feedWithBalances(ingested time.Time, balances ...votingpower.DirectBalance) *fakeFeed {
	return &fakeFeed{ingested: ingested, balances: balances}
}

// checkpointAt is a checkpoint seeded by the migrator, with no run behind it
func checkpointAt(date time.Time) *fakeCheckpoints {
	return &fakeCheckpoints{date: date, found: true}
}

func publishedAt(date time.Time) *fakeCheckpoints {
	return &fakeCheckpoints{date: date, runID: uuid.MustParse("5f0e6c1a-2b7d-4c3e-8f9a-1d2c3b4a5e6f"), found: true}
}

func checkpointMissing() *fakeCheckpoints {
	return &fakeCheckpoints{}
}

func emptySnapshots() *fakeSnapshots {
	return &fakeSnapshots{}
}

func snapshotsOf(byPipeline map[attester.Pipeline][]votingpower.RankedDelegate) *fakeSnapshots {
	return &fakeSnapshots{byPipeline: byPipeline}
}

func identityProxies() votingpower.ProxyResolver {
	return votingpower.ProxyResolverFunc(func(_ context.Context, owner votingpower.Address) (votingpower.Address, error) {
		return owner, nil
	})
}

func serviceFor(feed *fakeFeed, checkpoints *fakeCheckpoints, snapshots *fakeSnapshots, opts ...attester.Option) *attester.Service {
	base := []attester.Option{
		attester.WithClock(clock.Fixed(now)),
		attester.WithRunID(func() uuid.UUID { return runID }),
	}
	return attester.NewService(feed, checkpoints, snapshots, identityProxies(), append(base, opts...)...)
}

// Domain-specific assertions

func assertCheckpointSetTo(t *testing.T, checkpoints *fakeCheckpoints, expected time.Time) {
	t.Helper()

	writes := checkpoints.writes()
	require.Len(t, writes, 1, "Expected exactly one checkpoint write")
	assert.Equal(t, expected, writes[0], "Checkpoint should be %s", expected.Format(time.DateOnly))
}

func assertCheckpointUntouched(t *testing.T, checkpoints *fakeCheckpoints) {
	t.Helper()

	assert.Empty(t, checkpoints.writes(), "Checkpoint must not move on a failed run")
}

// assertRanking checks delegate/score pairs in rank order
func assertRanking(t *testing.T, rows []votingpower.RankedDelegate, pairs ...any) {
	t.Helper()

	require.Len(t, rows, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		row := rows[i/2]
		assert.Equal(t, i/2+1, row.Rank)
		assert.Equal(t, pairs[i], row.Delegate, "rank %d", row.Rank)
		assert.Equal(t, big.NewInt(int64(pairs[i+1].(int))).String(), row.TotalVotingPower.String(), "rank %d", row.Rank)
	}
}

// Fakes

// fakeFeed implements attester.Feed with fixed inputs
type fakeFeed struct {
	ingested time.Time
	balances []votingpower.DirectBalance
	subs     []votingpower.Subdelegation
	err      error
}

func (f *fakeFeed) IngestedThrough(context.Context) (time.Time, error) {
	return f.ingested, nil
}

func (f *fakeFeed) DirectBalances(context.Context, time.Time) ([]votingpower.DirectBalance, error) {
	return f.balances, f.err
}

func (f *fakeFeed) Subdelegations(context.Context, time.Time) ([]votingpower.Subdelegation, error) {
	return f.subs, f.err
}

// fakeCheckpoints implements attester.CheckpointStore and records writes
type fakeCheckpoints struct {
	mu       sync.Mutex
	date     time.Time
	runID    uuid.UUID
	found    bool
	readErr  error
	writeErr error
	written  []time.Time
}

func (f *fakeCheckpoints) Checkpoint(context.Context) (attester.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return attester.Checkpoint{}, f.readErr
	}
	if !f.found {
		return attester.Checkpoint{}, attester.ErrCheckpointNotFound
	}
	return attester.Checkpoint{Date: f.date, RunID: f.runID}, nil
}

func (f *fakeCheckpoints) SetCheckpoint(_ context.Context, date time.Time, runID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.date, f.runID, f.found = date, runID, true
	f.written = append(f.written, date)
	return nil
}

func (f *fakeCheckpoints) writes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.written...)
}

// fakeSnapshots implements attester.SnapshotStore and records lookups
type fakeSnapshots struct {
	mu         sync.Mutex
	byPipeline map[attester.Pipeline][]votingpower.RankedDelegate
	lookups    []string
}

func (f *fakeSnapshots) RankedDelegates(_ context.Context, p attester.Pipeline, date time.Time) ([]votingpower.RankedDelegate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups = append(f.lookups, p.String()+"@"+date.Format(time.DateOnly))
	return f.byPipeline[p], nil
}

func (f *fakeSnapshots) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lookups...)
}

// recordingPublisher implements attester.Publisher and keeps every delivery
type recordingPublisher struct {
	mu        sync.Mutex
	artifacts []attester.Artifacts
}

func (p *recordingPublisher) Publish(_ context.Context, a attester.Artifacts) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifacts = append(p.artifacts, a)
	return nil
}

func (p *recordingPublisher) published() []attester.Artifacts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]attester.Artifacts(nil), p.artifacts...)
}
