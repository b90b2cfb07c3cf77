package migratortest

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/migrator"
	"github.com/screwyprof/attester/pkg/pgxdb/pgxdbtest"
)

// CreateTestDatabase creates a test database with the schema applied and no data
func CreateTestDatabase(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	return createTestDatabaseWithMigrator(t, migrator.NewSchemaMigrator(migrationsDir))
}

// CreateIngesterTestDatabase creates a schema-only database whose ingest checkpoint is set to checkpoint.
// This mirrors production: schema first, then checkpoint initialization.
func CreateIngesterTestDatabase(t *testing.T, migrationsDir string, checkpoint time.Time) *pgxpool.Pool {
	t.Helper()

	pool := CreateTestDatabase(t, migrationsDir)
	require.NoError(t, migrator.InitializeIngestCheckpoint(t.Context(), pool, checkpoint))
	return pool
}

// CreateSeededTestDatabase creates a database holding days of demo history, each day published.
func CreateSeededTestDatabase(t *testing.T, migrationsDir string, start time.Time, days, delegates int, seedTimeout time.Duration) *pgxpool.Pool {
	t.Helper()

	return createTestDatabaseWithMigrator(t, migrator.NewSeededMigrator(migrationsDir, start, days, delegates, seedTimeout))
}

func createTestDatabaseWithMigrator(t *testing.T, migratorInstance pgtestdb.Migrator) *pgxpool.Pool {
	t.Helper()

	dbConfig := pgtestdb.Custom(t, createTestDatabaseConfig(), migratorInstance)

	pool := pgxdbtest.Connect(t, dbConfig.URL())

	t.Logf("testdbconf: %s", dbConfig.URL())

	return pool
}

// createTestDatabaseConfig creates the standard pgtestdb configuration for attester tests
func createTestDatabaseConfig() pgtestdb.Config {
	return pgtestdb.Config{
		DriverName: "pgx",
		User:       "attester",
		Password:   "attester",
		Host:       "localhost",
		Port:       "5432",
		Options:    "sslmode=disable",
	}
}
