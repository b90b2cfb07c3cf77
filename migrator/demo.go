package migrator

import (
	"fmt"
	"math/big"
	"time"

	"github.com/screwyprof/attester/ingester"
	"github.com/screwyprof/attester/votingpower"
)

// DemoAddress returns the n-th synthetic demo account
func DemoAddress(n int) votingpower.Address {
	return votingpower.MustParseAddress(fmt.Sprintf("0x%040x", 0xde0000+n))
}

// DemoDays builds a deterministic warehouse history of days consecutive days starting at start.
// Every day the strongest delegate of the previous day drops to zero power and a new one
// joins at the bottom, so successive runs produce non-empty attestation diffs. Delegate 1
// subdelegates half of its power to delegate 2 on the first day.
func DemoDays(start time.Time, days, delegates int) []ingester.Day {
	out := make([]ingester.Day, days)
	for d := range days {
		date := start.AddDate(0, 0, d)
		day := ingester.Day{Date: date}

		if d > 0 {
			day.Delegates = append(day.Delegates, votingpower.DirectBalance{
				Delegate:          DemoAddress(d),
				DirectVotingPower: new(big.Int),
				Date:              date,
			})
		}

		for i := 1; i <= delegates; i++ {
			n := i + d
			power := new(big.Int).Mul(big.NewInt(int64(delegates-i+1)), tokenUnit())
			day.Delegates = append(day.Delegates, votingpower.DirectBalance{
				Delegate:          DemoAddress(n),
				DirectVotingPower: power,
				Date:              date,
			})
			day.Balances = append(day.Balances, ingester.AccountBalance{
				Account: DemoAddress(n),
				Balance: new(big.Int).Set(power),
				Date:    date,
			})
		}

		if d == 0 && delegates > 1 {
			day.Subdelegations = append(day.Subdelegations, ingester.SubdelegationEvent{
				ID:              fmt.Sprintf("0x%064x-0", 1),
				BlockNumber:     1,
				BlockTimestamp:  date.Add(time.Hour),
				TransactionHash: fmt.Sprintf("0x%064x", 1),
				Subdelegation: votingpower.Subdelegation{
					From:          DemoAddress(1),
					To:            DemoAddress(2),
					AllowanceType: votingpower.Relative,
					Allowance:     big.NewInt(votingpower.RelativeDenominator / 2),
					Date:          date,
				},
			})
		}

		out[d] = day
	}
	return out
}

func tokenUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}
