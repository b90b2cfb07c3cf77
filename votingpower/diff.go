package votingpower

import (
	"time"

	"github.com/samber/lo"
)

// AttestationDiff lists whose delegate attestation to issue and to revoke
type AttestationDiff struct {
	Issue  []Address
	Revoke []Address
	Date   time.Time
}

// Empty reports whether nothing changed
func (d AttestationDiff) Empty() bool {
	return len(d.Issue) == 0 && len(d.Revoke) == 0
}

// Diff compares two snapshots by delegate identity only. Revoked addresses keep
// their order in previous, issued ones their order in current. A nil or empty
// previous issues every current delegate.
func Diff(previous, current []RankedDelegate, date time.Time) AttestationDiff {
	revoke, issue := lo.Difference(Delegates(previous), Delegates(current))
	return AttestationDiff{
		Issue:  nonNil(lo.Uniq(issue)),
		Revoke: nonNil(lo.Uniq(revoke)),
		Date:   date,
	}
}

// Delegates extracts the delegate addresses of a snapshot in rank order
func Delegates(ranked []RankedDelegate) []Address {
	return lo.Map(ranked, func(r RankedDelegate, _ int) Address {
		return r.Delegate
	})
}

func nonNil(a []Address) []Address {
	if a == nil {
		return []Address{}
	}
	return a
}
