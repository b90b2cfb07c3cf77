// Package dbrow maps published snapshot rows read by the web API
package dbrow

import (
	"fmt"
	"time"

	attesterrow "github.com/screwyprof/attester/attester/store/dbrow"
	"github.com/screwyprof/attester/votingpower"
)

// RankedDelegate is a ranked_delegates row; it shares the writer's mapping
type RankedDelegate = attesterrow.RankedDelegate

// DiffEntry is one attestation_diffs row
type DiffEntry struct {
	Action   string `db:"action"`
	Position int    `db:"position"`
	Delegate string `db:"delegate"`
}

// DiffToDomain rebuilds a diff from its rows, which must be ordered by position
func DiffToDomain(entries []DiffEntry, date time.Time) (votingpower.AttestationDiff, error) {
	diff := votingpower.AttestationDiff{
		Issue:  []votingpower.Address{},
		Revoke: []votingpower.Address{},
		Date:   date,
	}
	for _, e := range entries {
		addr, err := votingpower.ParseAddress(e.Delegate)
		if err != nil {
			return votingpower.AttestationDiff{}, err
		}
		switch e.Action {
		case attesterrow.ActionIssue:
			diff.Issue = append(diff.Issue, addr)
		case attesterrow.ActionRevoke:
			diff.Revoke = append(diff.Revoke, addr)
		default:
			return votingpower.AttestationDiff{}, fmt.Errorf("unknown diff action %q", e.Action)
		}
	}
	return diff, nil
}
