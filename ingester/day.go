package ingester

import (
	"math/big"
	"time"

	"github.com/screwyprof/attester/votingpower"
)

// Day is everything ingested for a single UTC day
type Day struct {
	Date           time.Time
	Delegates      []votingpower.DirectBalance
	Balances       []AccountBalance
	Subdelegations []SubdelegationEvent
}

// AccountBalance is a token holder's balance at the end of a day
type AccountBalance struct {
	Account votingpower.Address
	Balance *big.Int
	Date    time.Time
}

// SubdelegationEvent is a subdelegation rule together with the log it was emitted in
type SubdelegationEvent struct {
	ID              string
	BlockNumber     int64
	BlockTimestamp  time.Time
	TransactionHash string
	votingpower.Subdelegation
}
