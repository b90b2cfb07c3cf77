// Package snapshot reads what the attester has published: ranked delegates and
// attestation diffs per pipeline and date.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/votingpower"
)

// Sentinel errors
var (
	ErrInvalidPipeline = errors.New("invalid pipeline")
	ErrInvalidPerPage  = errors.New("invalid per_page")
	ErrNotPublished    = errors.New("no snapshot published for date")
)

// Finder reads published snapshots
type Finder interface {
	// FindDelegates returns ErrNotPublished when nothing is published for the date
	FindDelegates(ctx context.Context, criteria DelegatesCriteria) (*DelegatesPage, error)
	FindAttestation(ctx context.Context, pipeline attester.Pipeline, date time.Time) (votingpower.AttestationDiff, error)
}

// DelegatesCriteria selects one page of a ranked snapshot.
// A zero Date means the most recently published one.
type DelegatesCriteria struct {
	Pipeline attester.Pipeline
	Date     time.Time
	Page     Page
	Size     PerPage
}

// ItemsPerPage returns the number of rows requested per page
func (c DelegatesCriteria) ItemsPerPage() uint64 {
	return c.Size.Uint64()
}

// ItemsToSkip returns the number of rows before the page
func (c DelegatesCriteria) ItemsToSkip() uint64 {
	return (c.Page.Uint64() - 1) * c.Size.Uint64()
}

// NewDelegatesCriteria validates request values into criteria
func NewDelegatesCriteria(pipeline string, date time.Time, page, perPage uint64) (DelegatesCriteria, error) {
	p, err := ParsePipeline(pipeline)
	if err != nil {
		return DelegatesCriteria{}, err
	}

	pp, err := ParsePerPage(perPage)
	if err != nil {
		return DelegatesCriteria{}, fmt.Errorf("%w: %w", ErrInvalidPerPage, err)
	}

	return DelegatesCriteria{
		Pipeline: p,
		Date:     date,
		Page:     ParsePage(page),
		Size:     pp,
	}, nil
}

// ParsePipeline defaults an empty name to the partial voting power pipeline
func ParsePipeline(name string) (attester.Pipeline, error) {
	if name == "" {
		return attester.WithPartialVP, nil
	}
	p, err := attester.ParsePipeline(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}
	return p, nil
}

// DelegatesPage is one page of a ranked snapshot
type DelegatesPage struct {
	Pipeline  attester.Pipeline
	Date      time.Time
	Delegates []votingpower.RankedDelegate
	HasMore   bool
	Number    Page
	Size      PerPage
}

func (p *DelegatesPage) HasNext() bool     { return p.HasMore }
func (p *DelegatesPage) HasPrevious() bool { return p.Number > 1 }
