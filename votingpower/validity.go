package votingpower

import (
	"time"

	"github.com/samber/lo"
)

// ActiveAt keeps the subdelegations whose validity window contains at.
// NotValidBefore and NotValidAfter are unix timestamps; zero means unbounded.
// It is an optional pre-filter and is not applied by Propagate.
func ActiveAt(subs []Subdelegation, at time.Time) []Subdelegation {
	ts := at.Unix()
	return lo.Filter(subs, func(s Subdelegation, _ int) bool {
		if s.NotValidBefore != 0 && ts < s.NotValidBefore {
			return false
		}
		return s.NotValidAfter == 0 || ts <= s.NotValidAfter
	})
}
