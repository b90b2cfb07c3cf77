// Package dbrow converts ingested records to the row layout of the warehouse tables
package dbrow

import (
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/screwyprof/attester/ingester"
)

// Column lists in CopyFrom order
var (
	DelegateColumns      = []string{"date", "delegate", "direct_voting_power"}
	BalanceColumns       = []string{"date", "account", "balance"}
	SubdelegationColumns = []string{
		"id", "date", "from_address", "to_address", "allowance_type", "allowance",
		"max_redelegations", "blocks_before_vote_closes", "not_valid_before", "not_valid_after",
		"custom_rule", "block_number", "block_timestamp", "transaction_hash",
	}
)

// Numeric wraps a base-unit integer for NUMERIC(78,0) columns
func Numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}

// DelegatesToRows converts a day's direct balances to [][]any for pgx.CopyFromRows
func DelegatesToRows(day ingester.Day) [][]any {
	rows := make([][]any, len(day.Delegates))
	for i, d := range day.Delegates {
		rows[i] = []any{day.Date, d.Delegate.String(), Numeric(d.DirectVotingPower)}
	}
	return rows
}

// BalancesToRows converts a day's account balances to [][]any for pgx.CopyFromRows
func BalancesToRows(day ingester.Day) [][]any {
	rows := make([][]any, len(day.Balances))
	for i, b := range day.Balances {
		rows[i] = []any{day.Date, b.Account.String(), Numeric(b.Balance)}
	}
	return rows
}

// SubdelegationsToRows converts a day's Alligator events to [][]any for pgx.CopyFromRows
func SubdelegationsToRows(day ingester.Day) [][]any {
	rows := make([][]any, len(day.Subdelegations))
	for i, s := range day.Subdelegations {
		rows[i] = []any{
			s.ID,
			s.Date,
			s.From.String(),
			s.To.String(),
			int16(s.AllowanceType),
			Numeric(s.Allowance),
			s.MaxRedelegations,
			s.BlocksBeforeVoteCloses,
			s.NotValidBefore,
			s.NotValidAfter,
			s.CustomRule,
			s.BlockNumber,
			s.BlockTimestamp,
			s.TransactionHash,
		}
	}
	return rows
}
