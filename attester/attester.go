// Package attester runs the daily voting-power batch: it reads a day's snapshot from the
// warehouse, propagates partial delegations, ranks the top delegates per pipeline, diffs them
// against the last published snapshot and hands the artifacts to the publishers.
package attester

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/attester/pkg/clock"
	"github.com/screwyprof/attester/votingpower"
)

// Sentinel errors for failure cases
var (
	ErrRunInProgress       = errors.New("attestation run already in progress")
	ErrAlreadyPublished    = errors.New("date already published")
	ErrDataNotReady        = errors.New("date not ingested yet")
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointRetrieval = errors.New("checkpoint retrieval failed")
	ErrCheckpointUpdate    = errors.New("checkpoint update failed")
	ErrFeedFailed          = errors.New("reading feed failed")
	ErrBaselineRetrieval   = errors.New("baseline snapshot retrieval failed")
	ErrSnapshotMissing     = errors.New("published snapshot missing")
	ErrPropagationFailed   = errors.New("voting power propagation failed")
	ErrPublishFailed       = errors.New("publishing artifacts failed")
)

// Feed reads a day's inputs from the warehouse
// --------------------------------------------
type Feed interface {
	// IngestedThrough returns the last day the warehouse holds, or the zero time
	IngestedThrough(ctx context.Context) (time.Time, error)
	// DirectBalances returns each delegate's latest direct voting power at or before date
	DirectBalances(ctx context.Context, date time.Time) ([]votingpower.DirectBalance, error)
	// Subdelegations returns the latest rule per (from, to) pair at or before date
	Subdelegations(ctx context.Context, date time.Time) ([]votingpower.Subdelegation, error)
}

// Checkpoint is the last published date. RunID is uuid.Nil when the date was seeded
// by the migrator rather than published by a run, so no snapshot exists for it.
type Checkpoint struct {
	Date  time.Time
	RunID uuid.UUID
}

// Published reports whether a run stored snapshots for the checkpoint date
func (c Checkpoint) Published() bool {
	return c.RunID != uuid.Nil
}

// CheckpointStore persists the date of the last published run
type CheckpointStore interface {
	// Checkpoint returns ErrCheckpointNotFound before the first publication
	Checkpoint(ctx context.Context) (Checkpoint, error)
	SetCheckpoint(ctx context.Context, date time.Time, runID uuid.UUID) error
}

// SnapshotStore loads previously published ranked snapshots
type SnapshotStore interface {
	RankedDelegates(ctx context.Context, pipeline Pipeline, date time.Time) ([]votingpower.RankedDelegate, error)
}

// Publisher delivers a run's artifacts to one destination
type Publisher interface {
	Publish(ctx context.Context, artifacts Artifacts) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, artifacts Artifacts) error

// Publish calls f(ctx, artifacts)
func (f PublisherFunc) Publish(ctx context.Context, artifacts Artifacts) error {
	return f(ctx, artifacts)
}

// Clock abstracts time for production and testing
type Clock = clock.Clock

// Artifacts is everything a run publishes
type Artifacts struct {
	RunID     uuid.UUID
	Date      time.Time
	Baseline  time.Time // zero on the first run
	FetchedAt time.Time
	Pipelines []PipelineArtifacts
}

// PipelineArtifacts is one pipeline's ranked snapshot and diff
type PipelineArtifacts struct {
	Pipeline Pipeline
	Ranked   []votingpower.RankedDelegate
	Diff     votingpower.AttestationDiff
}

// For returns the artifacts of pipeline p
func (a Artifacts) For(p Pipeline) (PipelineArtifacts, bool) {
	for _, pa := range a.Pipelines {
		if pa.Pipeline == p {
			return pa, true
		}
	}
	return PipelineArtifacts{}, false
}

// Result describes a completed run
type Result struct {
	Artifacts
	ProxyLookups int
	Duration     time.Duration
}
