// Package filesink writes each run's artifacts as JSON files in the bucket layout
// consumed by the on-chain attestor: mvp/<date>/<artifact>.json.
package filesink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/votingpower"
)

// ErrWriteFailed is returned when an artifact file cannot be written
var ErrWriteFailed = errors.New("writing artifact file failed")

const (
	prefix = "mvp"

	// FetchTimestampLayout renders fetch timestamps as "2024-12-02 09:30:00 UTC+0000"
	FetchTimestampLayout = "2006-01-02 15:04:05 MST-0700"

	// TokenDecimals scales base units to whole tokens for display
	TokenDecimals = 18
)

// Sink writes artifacts below a root directory
type Sink struct {
	root string
}

// New creates a sink rooted at dir
func New(dir string) *Sink {
	return &Sink{root: dir}
}

// DelegateFile is the name of the ranked snapshot file of a pipeline
func DelegateFile(p attester.Pipeline) string {
	return "delegates_" + p.String() + ".json"
}

// AttestationFile is the name of the diff file of a pipeline
func AttestationFile(p attester.Pipeline) string {
	return "attestation_" + p.String() + ".json"
}

// Dir returns the directory holding the artifacts of date
func (s *Sink) Dir(date time.Time) string {
	return filepath.Join(s.root, prefix, date.Format(time.DateOnly))
}

// Publish implements attester.Publisher
func (s *Sink) Publish(_ context.Context, artifacts attester.Artifacts) error {
	dir := s.Dir(artifacts.Date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	for _, pa := range artifacts.Pipelines {
		if err := writeJSON(filepath.Join(dir, DelegateFile(pa.Pipeline)), delegateRecords(pa)); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(dir, AttestationFile(pa.Pipeline)), attestationRecord(pa.Diff)); err != nil {
			return err
		}
	}
	return nil
}

// DelegateRecord is one row of a delegates_*.json file.
// Amount is in base units; the voting power figures are whole tokens.
type DelegateRecord struct {
	Rank           int    `json:"rank"`
	Delegate       string `json:"delegate"`
	Amount         string `json:"amount"`
	VotingPower    string `json:"voting_power"`
	VP             string `json:"vp,omitempty"`
	PartialVP      string `json:"partial_vp,omitempty"`
	Date           string `json:"date"`
	FetchTimestamp string `json:"fetch_timestamp"`
}

// AttestationRecord is the content of an attestation_*.json file
type AttestationRecord struct {
	Issue  []string `json:"issue"`
	Revoke []string `json:"revoke"`
	Date   string   `json:"date"`
}

func delegateRecords(pa attester.PipelineArtifacts) []DelegateRecord {
	records := make([]DelegateRecord, len(pa.Ranked))
	for i, r := range pa.Ranked {
		rec := DelegateRecord{
			Rank:           r.Rank,
			Delegate:       r.Delegate.String(),
			Amount:         r.TotalVotingPower.String(),
			VotingPower:    Tokens(r.TotalVotingPower),
			Date:           r.Date.Format(time.DateOnly),
			FetchTimestamp: r.FetchTimestamp.UTC().Format(FetchTimestampLayout),
		}
		if pa.Pipeline == attester.WithPartialVP {
			rec.VP = Tokens(r.DirectVotingPower)
			rec.PartialVP = Tokens(r.AdvancedVotingPower)
		}
		records[i] = rec
	}
	return records
}

func attestationRecord(d votingpower.AttestationDiff) AttestationRecord {
	rec := AttestationRecord{
		Issue:  make([]string, len(d.Issue)),
		Revoke: make([]string, len(d.Revoke)),
		Date:   d.Date.Format(time.DateOnly),
	}
	for i, a := range d.Issue {
		rec.Issue[i] = a.String()
	}
	for i, a := range d.Revoke {
		rec.Revoke[i] = a.String()
	}
	return rec
}

// Tokens renders a base-unit amount as a whole-token decimal string
func Tokens(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}

// writeJSON writes v to path through a temporary file so readers never see partial files
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, filepath.Base(path), err)
	}
	return nil
}
