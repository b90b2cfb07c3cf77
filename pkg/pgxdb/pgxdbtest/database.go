// Package pgxdbtest opens small, fast-failing pools for database-backed tests
package pgxdbtest

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/pkg/pgxdb"
)

// Connect opens a pool to url sized for sequential tests and closes it on cleanup
func Connect(t *testing.T, url string) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxdb.NewConnection(t.Context(), url,
		pgxdb.WithMaxConns(2),
		pgxdb.WithMinConns(1),
		withTestLifetimes,
	)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func withTestLifetimes(c *pgxpool.Config) {
	c.MaxConnLifetime = 10 * time.Minute
	c.MaxConnIdleTime = time.Minute
	c.HealthCheckPeriod = 30 * time.Second
	c.ConnConfig.ConnectTimeout = 5 * time.Second
}
