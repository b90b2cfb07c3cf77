// Package dbrow maps warehouse and snapshot rows to attester domain values
package dbrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/votingpower"
)

// Diff actions stored in attestation_diffs.action
const (
	ActionIssue  = "issue"
	ActionRevoke = "revoke"
)

// Column lists in CopyFrom order
var (
	RankedColumns = []string{
		"pipeline", "date", "rank", "delegate",
		"direct_voting_power", "advanced_voting_power", "total_voting_power",
		"fetch_timestamp", "run_id",
	}
	DiffColumns = []string{"pipeline", "date", "action", "position", "delegate", "run_id"}
)

// DirectBalance is a daily_delegates row with the amount read as text
type DirectBalance struct {
	Delegate          string    `db:"delegate"`
	DirectVotingPower string    `db:"direct_voting_power"`
	Date              time.Time `db:"date"`
}

// ToDomain validates the row and converts it
func (r DirectBalance) ToDomain() (votingpower.DirectBalance, error) {
	delegate, err := votingpower.ParseAddress(r.Delegate)
	if err != nil {
		return votingpower.DirectBalance{}, err
	}
	power, err := votingpower.ParseAmount(r.DirectVotingPower)
	if err != nil {
		return votingpower.DirectBalance{}, fmt.Errorf("delegate %s: %w", r.Delegate, err)
	}
	return votingpower.DirectBalance{
		Delegate:          delegate,
		DirectVotingPower: power,
		Date:              r.Date.UTC(),
	}, nil
}

// Subdelegation is a subdelegations row with the allowance read as text
type Subdelegation struct {
	From                   string    `db:"from_address"`
	To                     string    `db:"to_address"`
	AllowanceType          int16     `db:"allowance_type"`
	Allowance              string    `db:"allowance"`
	MaxRedelegations       int64     `db:"max_redelegations"`
	BlocksBeforeVoteCloses int64     `db:"blocks_before_vote_closes"`
	NotValidBefore         int64     `db:"not_valid_before"`
	NotValidAfter          int64     `db:"not_valid_after"`
	CustomRule             string    `db:"custom_rule"`
	Date                   time.Time `db:"date"`
}

// ToDomain validates the row and converts it
func (r Subdelegation) ToDomain() (votingpower.Subdelegation, error) {
	from, err := votingpower.ParseAddress(r.From)
	if err != nil {
		return votingpower.Subdelegation{}, err
	}
	to, err := votingpower.ParseAddress(r.To)
	if err != nil {
		return votingpower.Subdelegation{}, err
	}
	allowanceType, err := votingpower.ParseAllowanceType(fmt.Sprint(r.AllowanceType))
	if err != nil {
		return votingpower.Subdelegation{}, err
	}
	allowance, err := votingpower.ParseAmount(r.Allowance)
	if err != nil {
		return votingpower.Subdelegation{}, err
	}
	return votingpower.Subdelegation{
		From:                   from,
		To:                     to,
		AllowanceType:          allowanceType,
		Allowance:              allowance,
		MaxRedelegations:       r.MaxRedelegations,
		BlocksBeforeVoteCloses: r.BlocksBeforeVoteCloses,
		NotValidBefore:         r.NotValidBefore,
		NotValidAfter:          r.NotValidAfter,
		CustomRule:             r.CustomRule,
		Date:                   r.Date.UTC(),
	}, nil
}

// RankedDelegate is a ranked_delegates row with amounts read as text
type RankedDelegate struct {
	Rank                int       `db:"rank"`
	Delegate            string    `db:"delegate"`
	DirectVotingPower   string    `db:"direct_voting_power"`
	AdvancedVotingPower string    `db:"advanced_voting_power"`
	TotalVotingPower    string    `db:"total_voting_power"`
	Date                time.Time `db:"date"`
	FetchTimestamp      time.Time `db:"fetch_timestamp"`
}

// ToDomain converts the row
func (r RankedDelegate) ToDomain() (votingpower.RankedDelegate, error) {
	delegate, err := votingpower.ParseAddress(r.Delegate)
	if err != nil {
		return votingpower.RankedDelegate{}, err
	}
	amounts := make([]*big.Int, 3)
	for i, s := range []string{r.DirectVotingPower, r.AdvancedVotingPower, r.TotalVotingPower} {
		if amounts[i], err = votingpower.ParseAmount(s); err != nil {
			return votingpower.RankedDelegate{}, fmt.Errorf("rank %d: %w", r.Rank, err)
		}
	}
	return votingpower.RankedDelegate{
		Rank:                r.Rank,
		Delegate:            delegate,
		DirectVotingPower:   amounts[0],
		AdvancedVotingPower: amounts[1],
		TotalVotingPower:    amounts[2],
		Date:                r.Date.UTC(),
		FetchTimestamp:      r.FetchTimestamp.UTC(),
	}, nil
}

// RankedToRows converts a pipeline's ranked snapshot to [][]any for pgx.CopyFromRows
func RankedToRows(runID uuid.UUID, pa attester.PipelineArtifacts) [][]any {
	rows := make([][]any, len(pa.Ranked))
	for i, r := range pa.Ranked {
		rows[i] = []any{
			pa.Pipeline.String(),
			r.Date,
			r.Rank,
			r.Delegate.String(),
			numeric(r.DirectVotingPower),
			numeric(r.AdvancedVotingPower),
			numeric(r.TotalVotingPower),
			r.FetchTimestamp,
			runID,
		}
	}
	return rows
}

// DiffToRows converts a pipeline's diff to [][]any for pgx.CopyFromRows.
// Position keeps the published order within each action.
func DiffToRows(runID uuid.UUID, pa attester.PipelineArtifacts) [][]any {
	rows := make([][]any, 0, len(pa.Diff.Issue)+len(pa.Diff.Revoke))
	for i, a := range pa.Diff.Issue {
		rows = append(rows, []any{pa.Pipeline.String(), pa.Diff.Date, ActionIssue, i, a.String(), runID})
	}
	for i, a := range pa.Diff.Revoke {
		rows = append(rows, []any{pa.Pipeline.String(), pa.Diff.Date, ActionRevoke, i, a.String(), runID})
	}
	return rows
}

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}
