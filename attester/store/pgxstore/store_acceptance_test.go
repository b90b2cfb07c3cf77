//go:build acceptance

package pgxstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/attester/store/pgxstore"
	"github.com/screwyprof/attester/attester/testcfg"
	"github.com/screwyprof/attester/ingester"
	ingesterstore "github.com/screwyprof/attester/ingester/store/pgxstore"
	"github.com/screwyprof/attester/migrator"
	"github.com/screwyprof/attester/migrator/migratortest"
	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/votingpower"
)

var (
	dec1  = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	dec2  = dec1.AddDate(0, 0, 1)
	runID = uuid.MustParse("0b9c3c1e-6d1f-4d7e-9a8c-3b1d2f6e7a10")
)

// TestStoreFeedAcceptance tests reading the warehouse
func TestStoreFeedAcceptance(t *testing.T) {
	t.Parallel()

	t.Run("it reads the latest balance of each delegate at or before the date", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 2, 3)...)
		store, _ := pgxstore.New(pool)

		// Act
		first, err1 := store.DirectBalances(t.Context(), dec1)
		second, err2 := store.DirectBalances(t.Context(), dec2)

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Len(t, first, 3)
		assert.Len(t, second, 4, "the delegate that left is reported with zero power")
		assert.Equal(t, "0", powerOf(second, migrator.DemoAddress(1)))
	})

	t.Run("it reads subdelegations recorded up to the date", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 2, 3)...)
		store, _ := pgxstore.New(pool)

		// Act
		subs, err := store.Subdelegations(t.Context(), dec2)

		// Assert
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, migrator.DemoAddress(1), subs[0].From)
		assert.Equal(t, votingpower.Relative, subs[0].AllowanceType)
		assert.Equal(t, "50000", subs[0].Allowance.String())
	})

	t.Run("it reports how far the warehouse is ingested", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 2, 3)...)
		store, _ := pgxstore.New(pool)

		// Act
		through, err := store.IngestedThrough(t.Context())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, dec2, through)
	})
}

// TestStorePublicationAcceptance tests the checkpoint and published snapshots
func TestStorePublicationAcceptance(t *testing.T) {
	t.Parallel()

	t.Run("it reports a missing checkpoint as not found", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := migratortest.CreateTestDatabase(t, testcfg.New().MigrationsDir)
		store, _ := pgxstore.New(pool)

		// Act
		_, err := store.Checkpoint(t.Context())

		// Assert
		assert.ErrorIs(t, err, attester.ErrCheckpointNotFound)
	})

	t.Run("it stores the checkpoint with its run id", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := migratortest.CreateTestDatabase(t, testcfg.New().MigrationsDir)
		store, _ := pgxstore.New(pool)

		// Act
		require.NoError(t, store.SetCheckpoint(t.Context(), dec1, uuid.New()))
		require.NoError(t, store.SetCheckpoint(t.Context(), dec2, runID))

		// Assert
		checkpoint, err := store.Checkpoint(t.Context())
		require.NoError(t, err)
		assert.Equal(t, attester.Checkpoint{Date: dec2, RunID: runID}, checkpoint)
		assert.True(t, checkpoint.Published())
	})

	t.Run("it reads a seeded checkpoint without a run id", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := migratortest.CreateTestDatabase(t, testcfg.New().MigrationsDir)
		store, _ := pgxstore.New(pool)
		require.NoError(t, migrator.InitializeAttesterCheckpoint(t.Context(), pool, dec1))

		// Act
		checkpoint, err := store.Checkpoint(t.Context())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, dec1, checkpoint.Date)
		assert.False(t, checkpoint.Published())
	})

	t.Run("it reads back a published snapshot in rank order", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 1, 3)...)
		store, _ := pgxstore.New(pool)
		result := runOnce(t, store, dec1)

		// Act
		ranked, err := store.RankedDelegates(t.Context(), attester.WithPartialVP, dec1)

		// Assert
		require.NoError(t, err)
		expected, _ := result.For(attester.WithPartialVP)
		require.Len(t, ranked, len(expected.Ranked))
		for i := range ranked {
			assert.Equal(t, expected.Ranked[i].Rank, ranked[i].Rank)
			assert.Equal(t, expected.Ranked[i].Delegate, ranked[i].Delegate)
			assert.Equal(t, expected.Ranked[i].TotalVotingPower.String(), ranked[i].TotalVotingPower.String())
		}
	})

	t.Run("it replaces a republished date instead of duplicating it", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 1, 3)...)
		store, _ := pgxstore.New(pool)
		result := runOnce(t, store, dec1)

		// Act
		err := store.Publish(t.Context(), result.Artifacts)

		// Assert
		require.NoError(t, err)
		var count int
		require.NoError(t, pool.QueryRow(t.Context(),
			"SELECT COUNT(*) FROM ranked_delegates WHERE date = $1", dec1).Scan(&count))
		assert.Equal(t, 6, count)
	})

	t.Run("it revokes the delegate that left on the next run", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 2, 3)...)
		store, _ := pgxstore.New(pool)
		runOnce(t, store, dec1, attester.WithRankLimit(3))

		// Act
		result := runOnce(t, store, dec2, attester.WithRankLimit(3))

		// Assert
		direct, _ := result.For(attester.WithoutPartialVP)
		assert.Equal(t, []votingpower.Address{migrator.DemoAddress(4)}, direct.Diff.Issue)
		assert.Equal(t, []votingpower.Address{migrator.DemoAddress(1)}, direct.Diff.Revoke)
		assertDiffRows(t, pool, attester.WithoutPartialVP, dec2, 2)
	})

	t.Run("it refuses to diff against a snapshot that was lost", func(t *testing.T) {
		t.Parallel()

		// Arrange
		pool := databaseWithDays(t, migrator.DemoDays(dec1, 2, 3)...)
		store, _ := pgxstore.New(pool)
		runOnce(t, store, dec1)
		_, err := pool.Exec(t.Context(), "DELETE FROM ranked_delegates WHERE date = $1", dec1)
		require.NoError(t, err)

		// Act
		_, err = serviceAt(store, dec2).Run(t.Context(), dec2)

		// Assert
		assert.ErrorIs(t, err, attester.ErrBaselineRetrieval)
		assert.ErrorIs(t, err, attester.ErrSnapshotMissing)
		checkpoint, err := store.Checkpoint(t.Context())
		require.NoError(t, err)
		assert.Equal(t, dec1, checkpoint.Date)
	})
}

func databaseWithDays(t *testing.T, days ...ingester.Day) *pgxpool.Pool {
	t.Helper()

	pool := migratortest.CreateTestDatabase(t, testcfg.New().MigrationsDir)
	warehouse, _ := ingesterstore.New(pool)
	for _, day := range days {
		require.NoError(t, warehouse.SaveDay(t.Context(), day))
	}
	return pool
}

func runOnce(t *testing.T, store *pgxstore.Store, date time.Time, opts ...attester.Option) attester.Result {
	t.Helper()

	result, err := serviceAt(store, date, opts...).Run(t.Context(), date)
	require.NoError(t, err)
	return result
}

// serviceAt builds a service whose clock sits on the day after date
func serviceAt(store *pgxstore.Store, date time.Time, opts ...attester.Option) *attester.Service {
	identity := votingpower.ProxyResolverFunc(func(_ context.Context, owner votingpower.Address) (votingpower.Address, error) {
		return owner, nil
	})
	base := []attester.Option{
		attester.WithPublishers(store),
		attester.WithClock(clock.Fixed(date.AddDate(0, 0, 1))),
	}
	return attester.NewService(store, store, store, identity, append(base, opts...)...)
}

func powerOf(balances []votingpower.DirectBalance, delegate votingpower.Address) string {
	for _, b := range balances {
		if b.Delegate == delegate {
			return b.DirectVotingPower.String()
		}
	}
	return ""
}

func assertDiffRows(t *testing.T, pool *pgxpool.Pool, p attester.Pipeline, date time.Time, expected int) {
	t.Helper()

	var count int
	require.NoError(t, pool.QueryRow(t.Context(),
		"SELECT COUNT(*) FROM attestation_diffs WHERE pipeline = $1 AND date = $2", p.String(), date).Scan(&count))
	assert.Equal(t, expected, count)
}
