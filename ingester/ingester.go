// Package ingester copies the daily governance snapshots and Alligator subdelegation events
// from the subgraph into the warehouse, one UTC day at a time.
package ingester

import (
	"context"
	"errors"
	"time"

	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/pkg/subgraph"
)

// Sentinel errors for failure cases
var (
	ErrCheckpointRetrieval = errors.New("checkpoint retrieval failed")
	ErrAPIRequestFailed    = errors.New("API request failed")
	ErrSaveDayFailed       = errors.New("save day failed")
	ErrConversionFailed    = errors.New("record conversion failed")
)

// Default configuration values
const (
	DefaultPollInterval = 15 * time.Minute
)

// Client fetches daily records from the subgraph
// ----------------------------------------------
type Client interface {
	DailyDelegates(ctx context.Context, day time.Time) ([]subgraph.DailyDelegate, error)
	DailyBalances(ctx context.Context, day time.Time) ([]subgraph.DailyBalance, error)
	SubDelegations(ctx context.Context, from, to time.Time) ([]subgraph.SubDelegation, error)
}

// Store provides persistence operations for ingested days
type Store interface {
	// LastIngestedDate returns the last fully ingested day, or the zero time if nothing was ingested yet
	LastIngestedDate(ctx context.Context) (time.Time, error)
	// SaveDay replaces everything stored for the day and advances the checkpoint to it
	SaveDay(ctx context.Context, day Day) error
}

// Clock abstracts time for production and testing
type Clock = clock.Clock

// SyncResult contains the results of ingesting a run of days
type SyncResult struct {
	Days       int
	Checkpoint time.Time
}

// Event represents a service lifecycle event
// ------------------------------------------
type Event any

type BackfillStarted struct {
	StartedAt  time.Time
	Checkpoint time.Time
	Until      time.Time
}

type DaySynced struct {
	Date           time.Time
	Delegates      int
	Balances       int
	Subdelegations int
}

type BackfillDone struct {
	TotalDays int
	Duration  time.Duration
}

type BackfillError struct {
	Err error
}

type PollingStarted struct {
	Interval time.Duration
}

type PollingSyncCompleted struct {
	Days       int
	Checkpoint time.Time
}

type PollingShutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}

type PollingError struct {
	Err error
}
