package votingpower

import (
	"math/big"
	"slices"
	"strings"
	"time"
)

// DefaultRankLimit is the size of a published snapshot
const DefaultRankLimit = 100

// ScoreFunc derives the ranking figure of a ledger entry
type ScoreFunc func(e *LedgerEntry) *big.Int

// DirectScore ranks by direct voting power only
func DirectScore(e *LedgerEntry) *big.Int {
	return new(big.Int).Set(e.Direct)
}

// TotalScore ranks by Direct + Temp.
//
// This reproduces the figure the published snapshots have always used: retained
// direct power is counted twice and received Advanced power is not counted.
// Changing it changes who is in the top 100, so it is kept as is.
func TotalScore(e *LedgerEntry) *big.Int {
	return new(big.Int).Add(e.Direct, e.Temp)
}

// RankedDelegate is one row of a published snapshot
type RankedDelegate struct {
	Rank                int
	Delegate            Address
	DirectVotingPower   *big.Int
	AdvancedVotingPower *big.Int
	TotalVotingPower    *big.Int
	Date                time.Time
	FetchTimestamp      time.Time
}

type scored struct {
	addr  Address
	entry *LedgerEntry
	score *big.Int
}

// Rank orders the whole ledger by score (descending, ties by ascending address),
// numbers the rows from 1 and keeps at most limit rows. Zero scores are ranked too and
// land at the tail. A non-positive limit keeps every row.
func Rank(ledger *Ledger, score ScoreFunc, limit int, date, fetchedAt time.Time) []RankedDelegate {
	rows := make([]scored, 0, ledger.Len())
	for _, addr := range ledger.Addresses() {
		e, _ := ledger.Get(addr)
		rows = append(rows, scored{addr: addr, entry: e, score: score(e)})
	}

	slices.SortFunc(rows, func(a, b scored) int {
		if c := b.score.Cmp(a.score); c != 0 {
			return c
		}
		return strings.Compare(string(a.addr), string(b.addr))
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	ranked := make([]RankedDelegate, len(rows))
	for i, r := range rows {
		ranked[i] = RankedDelegate{
			Rank:                i + 1,
			Delegate:            r.addr,
			DirectVotingPower:   new(big.Int).Set(r.entry.Direct),
			AdvancedVotingPower: new(big.Int).Set(r.entry.Advanced),
			TotalVotingPower:    r.score,
			Date:                date,
			FetchTimestamp:      fetchedAt,
		}
	}
	return ranked
}
