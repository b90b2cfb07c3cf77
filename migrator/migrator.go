package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/screwyprof/attester/attester"
	attesterstore "github.com/screwyprof/attester/attester/store/pgxstore"
	ingesterstore "github.com/screwyprof/attester/ingester/store/pgxstore"
	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/pkg/pgxdb"
	"github.com/screwyprof/attester/votingpower"
)

const migrationsTable = "schema_migrations"

const (
	ingestCheckpointTable   = "ingest_checkpoint"
	attesterCheckpointTable = "attester_checkpoint"
)

var (
	ErrMigrationExecution  = errors.New("migration execution failed")
	ErrCheckpointOperation = errors.New("checkpoint operation failed")
	ErrSeedFailed          = errors.New("seeding demo data failed")
)

// SchemaMigrator is a pgtestdb migrator that applies the schema and nothing else
type SchemaMigrator struct {
	dir string
}

func NewSchemaMigrator(migrationsDir string) *SchemaMigrator {
	return &SchemaMigrator{dir: migrationsDir}
}

func (m *SchemaMigrator) Hash() (string, error) {
	return templateHash(m.dir, "schema")
}

func (m *SchemaMigrator) Migrate(_ context.Context, db *sql.DB, _ pgtestdb.Config) error {
	return applyMigrations(db, m.dir)
}

// SeededMigrator applies schema migrations, ingests a synthetic history and publishes
// an attestation run for every day of it. Web tests run against the result.
type SeededMigrator struct {
	migrationsDir string
	start         time.Time
	days          int
	delegates     int
	seedTimeout   time.Duration
}

func NewSeededMigrator(migrationsDir string, start time.Time, days, delegates int, seedTimeout time.Duration) *SeededMigrator {
	return &SeededMigrator{
		migrationsDir: migrationsDir,
		start:         clock.Day(start),
		days:          days,
		delegates:     delegates,
		seedTimeout:   seedTimeout,
	}
}

func (m *SeededMigrator) Hash() (string, error) {
	return templateHash(m.migrationsDir, "seeded",
		m.start.Format("20060102"), strconv.Itoa(m.days), strconv.Itoa(m.delegates))
}

func (m *SeededMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	if err := applyMigrations(db, m.migrationsDir); err != nil {
		return err
	}
	return m.seedDemoData(ctx, conf.URL())
}

// seedDemoData ingests the demo days and publishes each of them in order
func (m *SeededMigrator) seedDemoData(ctx context.Context, dbURL string) error {
	slog.InfoContext(ctx, "🌱 Seeding demo database",
		"start", m.start.Format(time.DateOnly),
		"days", m.days,
		"delegates", m.delegates,
		"timeout", m.seedTimeout)

	seedCtx, cancel := context.WithTimeout(ctx, m.seedTimeout)
	defer cancel()

	pool, err := pgxdb.NewConnection(seedCtx, dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	warehouse, _ := ingesterstore.New(pool)
	for _, day := range DemoDays(m.start, m.days, m.delegates) {
		if err := warehouse.SaveDay(seedCtx, day); err != nil {
			return fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
	}

	store, _ := attesterstore.New(pool)
	identity := votingpower.ProxyResolverFunc(func(_ context.Context, owner votingpower.Address) (votingpower.Address, error) {
		return owner, nil
	})
	for d := range m.days {
		date := m.start.AddDate(0, 0, d)
		svc := attester.NewService(store, store, store, identity,
			attester.WithPublishers(store),
			attester.WithClock(clock.Fixed(date.AddDate(0, 0, 1))),
			attester.WithRankLimit(m.delegates),
		)
		if _, err := svc.Run(seedCtx, date); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSeedFailed, date.Format(time.DateOnly), err)
		}
	}

	slog.InfoContext(seedCtx, "✅ Demo database seeding completed successfully")
	return nil
}

// ApplyMigrations runs the pending migrations over a pgx pool
func ApplyMigrations(pool *pgxpool.Pool, migrationsDir string) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return applyMigrations(db, migrationsDir)
}

// InitializeIngestCheckpoint sets the ingest checkpoint unless one exists.
// The ingester resumes from the day after it.
func InitializeIngestCheckpoint(ctx context.Context, pool *pgxpool.Pool, date time.Time) error {
	return writeCheckpoint(ctx, pool, ingestCheckpointTable, date, false)
}

// SetIngestCheckpoint overwrites the ingest checkpoint
func SetIngestCheckpoint(ctx context.Context, pool *pgxpool.Pool, date time.Time) error {
	return writeCheckpoint(ctx, pool, ingestCheckpointTable, date, true)
}

// InitializeAttesterCheckpoint marks date as already published unless a checkpoint exists.
// The first run then diffs against the snapshot stored for that date.
func InitializeAttesterCheckpoint(ctx context.Context, pool *pgxpool.Pool, date time.Time) error {
	return writeCheckpoint(ctx, pool, attesterCheckpointTable, date, false)
}

func writeCheckpoint(ctx context.Context, pool *pgxpool.Pool, table string, date time.Time, overwrite bool) error {
	onConflict := "DO NOTHING"
	if overwrite {
		onConflict = "DO UPDATE SET last_date = EXCLUDED.last_date"
	}
	query := "INSERT INTO " + table + " (single_row, last_date) VALUES (TRUE, $1) ON CONFLICT (single_row) " + onConflict

	if _, err := pool.Exec(ctx, query, clock.Day(date)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCheckpointOperation, table, err)
	}
	return nil
}

func migrations(dir string) (*migrate.FileMigrationSource, *migrate.MigrationSet) {
	return &migrate.FileMigrationSource{Dir: dir}, &migrate.MigrationSet{TableName: migrationsTable}
}

// templateHash identifies a pgtestdb template by the migration files plus the seed parameters
func templateHash(dir, kind string, params ...string) (string, error) {
	source, set := migrations(dir)
	hash, err := sqlmigrator.New(source, set).Hash()
	if err != nil {
		return "", fmt.Errorf("hashing migrations in %s: %w", dir, err)
	}
	return strings.Join(append([]string{kind, hash}, params...), "_"), nil
}

func applyMigrations(db *sql.DB, dir string) error {
	source, set := migrations(dir)
	if _, err := set.Exec(db, "postgres", source, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationExecution, err)
	}
	return nil
}
