package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/attester/ingester"
	"github.com/screwyprof/attester/ingester/store/dbrow"
	"github.com/screwyprof/attester/pkg/pgxdb"
)

// Sentinel errors for store operations
var (
	ErrDeleteFailed       = errors.New("delete operation failed")
	ErrTempTableFailed    = errors.New("temporary table operation failed")
	ErrCopyFailed         = errors.New("bulk copy operation failed")
	ErrInsertFailed       = errors.New("insert operation failed")
	ErrCheckpointFailed   = errors.New("checkpoint update failed")
	ErrLastIngestedFailed = errors.New("failed to get last ingested date")
)

// Store implements ingester.Store using pgx
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

// LastIngestedDate returns the ingest checkpoint, or the zero time when nothing was ingested
func (s *Store) LastIngestedDate(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := s.pool.QueryRow(ctx, "SELECT last_date FROM ingest_checkpoint").Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrLastIngestedFailed, err)
	}
	return last.UTC(), nil
}

// SaveDay replaces the day's snapshot rows and subdelegation events and moves the checkpoint,
// all in one transaction. Re-ingesting a day is therefore idempotent.
func (s *Store) SaveDay(ctx context.Context, day ingester.Day) error {
	return pgxdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := replaceSnapshot(ctx, tx, "daily_delegates", day.Date, dbrow.DelegateColumns, dbrow.DelegatesToRows(day)); err != nil {
			return err
		}
		if err := replaceSnapshot(ctx, tx, "daily_balances", day.Date, dbrow.BalanceColumns, dbrow.BalancesToRows(day)); err != nil {
			return err
		}
		if err := saveSubdelegations(ctx, tx, day); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO ingest_checkpoint (single_row, last_date) VALUES (TRUE, $1)
			ON CONFLICT (single_row) DO UPDATE SET last_date = GREATEST(ingest_checkpoint.last_date, EXCLUDED.last_date)
		`, day.Date)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
		}
		return nil
	})
}

// replaceSnapshot deletes the date's rows from table and bulk copies the new ones in
func replaceSnapshot(ctx context.Context, tx pgx.Tx, table string, date time.Time, columns []string, rows [][]any) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE date = $1", pgx.Identifier{table}.Sanitize()), date); err != nil {
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

// saveSubdelegations stages events in a temporary table so that events already stored
// under another date are skipped instead of failing the copy
func saveSubdelegations(ctx context.Context, tx pgx.Tx, day ingester.Day) error {
	if _, err := tx.Exec(ctx, "DELETE FROM subdelegations WHERE date = $1", day.Date); err != nil {
		return fmt.Errorf("%w: subdelegations: %w", ErrDeleteFailed, err)
	}
	if len(day.Subdelegations) == 0 {
		return nil
	}

	_, err := tx.Exec(ctx, `
		CREATE TEMPORARY TABLE temp_subdelegations
		(LIKE subdelegations INCLUDING DEFAULTS) ON COMMIT DROP
	`)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTempTableFailed, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"temp_subdelegations"},
		dbrow.SubdelegationColumns,
		pgx.CopyFromRows(dbrow.SubdelegationsToRows(day)),
	)
	if err != nil {
		return fmt.Errorf("%w: subdelegations: %w", ErrCopyFailed, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subdelegations (
			id, date, from_address, to_address, allowance_type, allowance,
			max_redelegations, blocks_before_vote_closes, not_valid_before, not_valid_after,
			custom_rule, block_number, block_timestamp, transaction_hash
		)
		SELECT
			id, date, from_address, to_address, allowance_type, allowance,
			max_redelegations, blocks_before_vote_closes, not_valid_before, not_valid_after,
			custom_rule, block_number, block_timestamp, transaction_hash
		FROM temp_subdelegations
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("%w: subdelegations: %w", ErrInsertFailed, err)
	}
	return nil
}
