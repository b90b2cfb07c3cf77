package ingester

import (
	"fmt"
	"time"

	"github.com/screwyprof/attester/pkg/subgraph"
	"github.com/screwyprof/attester/votingpower"
)

// convertDelegates converts subgraph delegate snapshots to direct balances for the day
func convertDelegates(day time.Time, records []subgraph.DailyDelegate) ([]votingpower.DirectBalance, error) {
	out := make([]votingpower.DirectBalance, 0, len(records))
	for _, r := range records {
		delegate, err := votingpower.ParseAddress(r.Delegate)
		if err != nil {
			return nil, fmt.Errorf("%w: delegate %s: %w", ErrConversionFailed, r.ID, err)
		}
		power, err := votingpower.ParseAmount(r.DirectVotingPower)
		if err != nil {
			return nil, fmt.Errorf("%w: delegate %s: %w", ErrConversionFailed, r.ID, err)
		}
		out = append(out, votingpower.DirectBalance{
			Delegate:          delegate,
			DirectVotingPower: power,
			Date:              day,
		})
	}
	return out, nil
}

// convertBalances converts subgraph account snapshots to balances for the day
func convertBalances(day time.Time, records []subgraph.DailyBalance) ([]AccountBalance, error) {
	out := make([]AccountBalance, 0, len(records))
	for _, r := range records {
		account, err := votingpower.ParseAddress(r.Account)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %s: %w", ErrConversionFailed, r.ID, err)
		}
		amount, err := votingpower.ParseAmount(r.Balance)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %s: %w", ErrConversionFailed, r.ID, err)
		}
		out = append(out, AccountBalance{
			Account: account,
			Balance: amount,
			Date:    day,
		})
	}
	return out, nil
}

// convertSubdelegations converts Alligator events; each event is dated by its block's UTC day
func convertSubdelegations(records []subgraph.SubDelegation) ([]SubdelegationEvent, error) {
	out := make([]SubdelegationEvent, 0, len(records))
	for _, r := range records {
		ev, err := convertSubdelegation(r)
		if err != nil {
			return nil, fmt.Errorf("%w: subdelegation %s: %w", ErrConversionFailed, r.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func convertSubdelegation(r subgraph.SubDelegation) (SubdelegationEvent, error) {
	from, err := votingpower.ParseAddress(r.From)
	if err != nil {
		return SubdelegationEvent{}, err
	}
	to, err := votingpower.ParseAddress(r.To)
	if err != nil {
		return SubdelegationEvent{}, err
	}
	allowanceType, err := votingpower.ParseAllowanceType(r.AllowanceType)
	if err != nil {
		return SubdelegationEvent{}, err
	}
	allowance, err := votingpower.ParseAmount(r.Allowance)
	if err != nil {
		return SubdelegationEvent{}, err
	}

	ts := time.Unix(int64(r.BlockTimestamp), 0).UTC()
	y, m, d := ts.Date()

	return SubdelegationEvent{
		ID:              r.ID,
		BlockNumber:     int64(r.BlockNumber),
		BlockTimestamp:  ts,
		TransactionHash: r.TransactionHash,
		Subdelegation: votingpower.Subdelegation{
			From:                   from,
			To:                     to,
			AllowanceType:          allowanceType,
			Allowance:              allowance,
			MaxRedelegations:       int64(r.MaxRedelegations),
			BlocksBeforeVoteCloses: int64(r.BlocksBeforeVoteCloses),
			NotValidBefore:         int64(r.NotValidBefore),
			NotValidAfter:          int64(r.NotValidAfter),
			CustomRule:             r.CustomRule,
			Date:                   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		},
	}, nil
}
