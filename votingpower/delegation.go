package votingpower

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrUnknownAllowanceType is returned for allowance types other than Absolute and Relative
var ErrUnknownAllowanceType = errors.New("unknown allowance type")

// AllowanceType selects how a subdelegation allowance is interpreted
type AllowanceType uint8

const (
	// Absolute allowances are a fixed quantity of base units
	Absolute AllowanceType = iota
	// Relative allowances are a share of the source's direct power in hundred-thousandths
	Relative
)

// ParseAllowanceType accepts the subgraph names and the on-chain ordinals
func ParseAllowanceType(s string) (AllowanceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "0":
		return Absolute, nil
	case "relative", "1":
		return Relative, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAllowanceType, s)
}

func (t AllowanceType) String() string {
	switch t {
	case Absolute:
		return "Absolute"
	case Relative:
		return "Relative"
	}
	return fmt.Sprintf("AllowanceType(%d)", uint8(t))
}

// DirectBalance is a delegate's direct voting power on a given day
type DirectBalance struct {
	Delegate          Address
	DirectVotingPower *big.Int
	Date              time.Time
}

// Subdelegation authorises To to wield up to Allowance of From's remaining power.
// The validity fields are carried through unevaluated; see ActiveAt.
type Subdelegation struct {
	From                   Address
	To                     Address
	AllowanceType          AllowanceType
	Allowance              *big.Int
	MaxRedelegations       int64
	BlocksBeforeVoteCloses int64
	NotValidBefore         int64
	NotValidAfter          int64
	CustomRule             string
	Date                   time.Time
}

func (b DirectBalance) String() string {
	return fmt.Sprintf("balance{delegate=%s date=%s}", b.Delegate, b.Date.Format(time.DateOnly))
}

func (s Subdelegation) String() string {
	return fmt.Sprintf("subdelegation{from=%s to=%s date=%s}", s.From, s.To, s.Date.Format(time.DateOnly))
}
