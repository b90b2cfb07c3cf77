package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/votingpower"
	"github.com/screwyprof/attester/web/snapshot"
	"github.com/screwyprof/attester/web/store/dbrow"
)

// Sentinel errors for store operations
var (
	ErrQueryFailed = errors.New("snapshot query failed")
	ErrInvalidRow  = errors.New("invalid snapshot row")
)

const (
	publishedThroughSQL = `SELECT last_date FROM attester_checkpoint`

	// days skipped between runs, or seeded by the migrator, have a checkpoint but no rows
	snapshotExistsSQL = `SELECT EXISTS (SELECT 1 FROM ranked_delegates WHERE pipeline = $1 AND date = $2)`

	diffSQL = `
		SELECT action, position, delegate
		FROM attestation_diffs
		WHERE pipeline = $1 AND date = $2
		ORDER BY action, position`
)

// SnapshotFinder implements snapshot.Finder using pgx
type SnapshotFinder struct {
	pool *pgxpool.Pool
}

// New creates a finder with an existing connection pool
// Returns the finder and a closer function
func New(pool *pgxpool.Pool) (*SnapshotFinder, func()) {
	finder := &SnapshotFinder{pool: pool}
	closer := func() {
		pool.Close()
	}
	return finder, closer
}

// FindDelegates returns a page of a ranked snapshot, using LIMIT n+1 to detect further pages
func (f *SnapshotFinder) FindDelegates(ctx context.Context, criteria snapshot.DelegatesCriteria) (*snapshot.DelegatesPage, error) {
	date, err := f.resolveDate(ctx, criteria.Pipeline, criteria.Date)
	if err != nil {
		return nil, err
	}

	query, args := NewDelegatesQuery().ForCriteria(criteria, date).Build()
	rows, err := f.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var delegates []votingpower.RankedDelegate
	for rows.Next() {
		var r dbrow.RankedDelegate
		err := rows.Scan(&r.Rank, &r.Delegate, &r.DirectVotingPower, &r.AdvancedVotingPower,
			&r.TotalVotingPower, &r.Date, &r.FetchTimestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrQueryFailed, err)
		}
		d, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
		}
		delegates = append(delegates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	hasMore := len(delegates) > int(criteria.Size)
	if hasMore {
		delegates = delegates[:criteria.Size]
	}

	return &snapshot.DelegatesPage{
		Pipeline:  criteria.Pipeline,
		Date:      date,
		Delegates: delegates,
		HasMore:   hasMore,
		Number:    criteria.Page,
		Size:      criteria.Size,
	}, nil
}

// FindAttestation returns the diff published for the pipeline and date (latest when zero)
func (f *SnapshotFinder) FindAttestation(ctx context.Context, pipeline attester.Pipeline, date time.Time) (votingpower.AttestationDiff, error) {
	resolved, err := f.resolveDate(ctx, pipeline, date)
	if err != nil {
		return votingpower.AttestationDiff{}, err
	}

	rows, err := f.pool.Query(ctx, diffSQL, pipeline.String(), resolved)
	if err != nil {
		return votingpower.AttestationDiff{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.DiffEntry])
	if err != nil {
		return votingpower.AttestationDiff{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	diff, err := dbrow.DiffToDomain(entries, resolved)
	if err != nil {
		return votingpower.AttestationDiff{}, fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	return diff, nil
}

// resolveDate maps a zero date to the last published one. Dates after it, and dates
// without a stored snapshot for the pipeline, are not published.
func (f *SnapshotFinder) resolveDate(ctx context.Context, pipeline attester.Pipeline, date time.Time) (time.Time, error) {
	var published time.Time
	err := f.pool.QueryRow(ctx, publishedThroughSQL).Scan(&published)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, snapshot.ErrNotPublished
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	published = published.UTC()

	if date.IsZero() {
		date = published
	}
	if date.After(published) {
		return time.Time{}, fmt.Errorf("%w: %s", snapshot.ErrNotPublished, date.Format(time.DateOnly))
	}

	var exists bool
	if err := f.pool.QueryRow(ctx, snapshotExistsSQL, pipeline.String(), date).Scan(&exists); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if !exists {
		return time.Time{}, fmt.Errorf("%w: %s %s", snapshot.ErrNotPublished, pipeline, date.Format(time.DateOnly))
	}
	return date, nil
}
