package votingpower

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors for propagation input
var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrDuplicateBalance = errors.New("duplicate direct balance")
)

// Propagate combines direct balances with subdelegations into a ledger.
//
// Subdelegations are applied in ascending (From, Date, To) order; budget
// depletion is sequential, so any other order changes the result. Each From
// is resolved to its proxy and the proxy's entry pays for the grant.
// Neither input slice is modified.
func Propagate(ctx context.Context, balances []DirectBalance, subdelegations []Subdelegation, proxies *ProxyCache) (*Ledger, error) {
	ledger := NewLedger()

	for _, b := range balances {
		if err := validateBalance(b); err != nil {
			return nil, err
		}
		if _, exists := ledger.Get(b.Delegate); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBalance, b)
		}
		ledger.Credit(b.Delegate, b.DirectVotingPower)
	}

	for _, sub := range subdelegations {
		if err := validateSubdelegation(sub); err != nil {
			return nil, err
		}
	}

	ordered := slices.Clone(subdelegations)
	SortSubdelegations(ordered)

	for _, sub := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proxy, err := proxies.Resolve(ctx, sub.From)
		if err != nil {
			return nil, err
		}
		ledger.Apply(proxy, sub)
	}

	return ledger, nil
}

// SortSubdelegations orders subdelegations by (From, Date, To) in place
func SortSubdelegations(subs []Subdelegation) {
	slices.SortStableFunc(subs, func(a, b Subdelegation) int {
		if c := strings.Compare(string(a.From), string(b.From)); c != 0 {
			return c
		}
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(string(a.To), string(b.To))
	})
}

func validateBalance(b DirectBalance) error {
	if !b.Delegate.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, b, ErrInvalidAddress)
	}
	if b.DirectVotingPower == nil || b.DirectVotingPower.Sign() < 0 {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, b, ErrInvalidAmount)
	}
	return nil
}

func validateSubdelegation(s Subdelegation) error {
	if !s.From.Valid() || !s.To.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, s, ErrInvalidAddress)
	}
	if s.Allowance == nil || s.Allowance.Sign() < 0 {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, s, ErrInvalidAmount)
	}
	if s.AllowanceType != Absolute && s.AllowanceType != Relative {
		return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, s, ErrUnknownAllowanceType)
	}
	return nil
}
