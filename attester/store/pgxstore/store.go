package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/attester/store/dbrow"
	"github.com/screwyprof/attester/pkg/pgxdb"
	"github.com/screwyprof/attester/votingpower"
)

// Sentinel errors for store operations
var (
	ErrQueryFailed      = errors.New("query failed")
	ErrInvalidRow       = errors.New("invalid row")
	ErrDeleteFailed     = errors.New("delete operation failed")
	ErrCopyFailed       = errors.New("bulk copy operation failed")
	ErrCheckpointFailed = errors.New("checkpoint update failed")
)

// SQL queries
const (
	ingestedThroughSQL = `SELECT last_date FROM ingest_checkpoint`

	// latest snapshot of every delegate at or before the date
	directBalancesSQL = `
		SELECT DISTINCT ON (delegate) delegate, direct_voting_power::text, date
		FROM daily_delegates
		WHERE date <= $1
		ORDER BY delegate, date DESC`

	// latest rule of every (from, to) pair at or before the date
	subdelegationsSQL = `
		SELECT DISTINCT ON (from_address, to_address)
			from_address, to_address, allowance_type, allowance::text,
			max_redelegations, blocks_before_vote_closes, not_valid_before, not_valid_after,
			custom_rule, date
		FROM subdelegations
		WHERE date <= $1
		ORDER BY from_address, to_address, block_timestamp DESC, block_number DESC, id DESC`

	checkpointSQL = `SELECT last_date, run_id FROM attester_checkpoint`

	setCheckpointSQL = `
		INSERT INTO attester_checkpoint (single_row, last_date, run_id, updated_at)
		VALUES (TRUE, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (single_row) DO UPDATE
		SET last_date = EXCLUDED.last_date, run_id = EXCLUDED.run_id, updated_at = EXCLUDED.updated_at`

	rankedDelegatesSQL = `
		SELECT rank, delegate, direct_voting_power::text, advanced_voting_power::text,
			total_voting_power::text, date, fetch_timestamp
		FROM ranked_delegates
		WHERE pipeline = $1 AND date = $2
		ORDER BY rank`
)

// Store implements attester.Feed, attester.CheckpointStore, attester.SnapshotStore
// and attester.Publisher using pgx
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// IngestedThrough returns the ingest checkpoint, or the zero time when nothing was ingested
func (s *Store) IngestedThrough(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := s.pool.QueryRow(ctx, ingestedThroughSQL).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return last.UTC(), nil
}

// DirectBalances returns each delegate's latest direct voting power at or before date
func (s *Store) DirectBalances(ctx context.Context, date time.Time) ([]votingpower.DirectBalance, error) {
	rows, err := s.pool.Query(ctx, directBalancesSQL, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var balances []votingpower.DirectBalance
	for rows.Next() {
		var r dbrow.DirectBalance
		if err := rows.Scan(&r.Delegate, &r.DirectVotingPower, &r.Date); err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrQueryFailed, err)
		}
		b, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return balances, nil
}

// Subdelegations returns the latest rule per (from, to) pair at or before date
func (s *Store) Subdelegations(ctx context.Context, date time.Time) ([]votingpower.Subdelegation, error) {
	rows, err := s.pool.Query(ctx, subdelegationsSQL, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var subs []votingpower.Subdelegation
	for rows.Next() {
		var r dbrow.Subdelegation
		err := rows.Scan(&r.From, &r.To, &r.AllowanceType, &r.Allowance,
			&r.MaxRedelegations, &r.BlocksBeforeVoteCloses, &r.NotValidBefore, &r.NotValidAfter,
			&r.CustomRule, &r.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrQueryFailed, err)
		}
		sub, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return subs, nil
}

// Checkpoint returns the last published date or attester.ErrCheckpointNotFound.
// A checkpoint seeded by the migrator has no run id.
func (s *Store) Checkpoint(ctx context.Context) (attester.Checkpoint, error) {
	var (
		last  time.Time
		runID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, checkpointSQL).Scan(&last, &runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return attester.Checkpoint{}, attester.ErrCheckpointNotFound
	}
	if err != nil {
		return attester.Checkpoint{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	checkpoint := attester.Checkpoint{Date: last.UTC()}
	if runID.Valid {
		checkpoint.RunID = uuid.UUID(runID.Bytes)
	}
	return checkpoint, nil
}

// SetCheckpoint records date as the last published date
func (s *Store) SetCheckpoint(ctx context.Context, date time.Time, runID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, setCheckpointSQL, date, runID); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}
	return nil
}

// RankedDelegates loads a published ranked snapshot in rank order
func (s *Store) RankedDelegates(ctx context.Context, pipeline attester.Pipeline, date time.Time) ([]votingpower.RankedDelegate, error) {
	rows, err := s.pool.Query(ctx, rankedDelegatesSQL, pipeline.String(), date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var ranked []votingpower.RankedDelegate
	for rows.Next() {
		var r dbrow.RankedDelegate
		err := rows.Scan(&r.Rank, &r.Delegate, &r.DirectVotingPower, &r.AdvancedVotingPower,
			&r.TotalVotingPower, &r.Date, &r.FetchTimestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrQueryFailed, err)
		}
		rd, err := r.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
		}
		ranked = append(ranked, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return ranked, nil
}

// Publish replaces the date's ranked snapshots and diffs of every pipeline in one transaction
func (s *Store) Publish(ctx context.Context, artifacts attester.Artifacts) error {
	return pgxdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, pa := range artifacts.Pipelines {
			if err := replace(ctx, tx, "ranked_delegates", pa.Pipeline, artifacts.Date,
				dbrow.RankedColumns, dbrow.RankedToRows(artifacts.RunID, pa)); err != nil {
				return err
			}
			if err := replace(ctx, tx, "attestation_diffs", pa.Pipeline, artifacts.Date,
				dbrow.DiffColumns, dbrow.DiffToRows(artifacts.RunID, pa)); err != nil {
				return err
			}
		}
		return nil
	})
}

func replace(ctx context.Context, tx pgx.Tx, table string, pipeline attester.Pipeline, date time.Time, columns []string, rows [][]any) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE pipeline = $1 AND date = $2", pgx.Identifier{table}.Sanitize())
	if _, err := tx.Exec(ctx, del, pipeline.String(), date); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, table, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCopyFailed, table, err)
	}
	return nil
}
