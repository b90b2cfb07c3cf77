package votingpower

import "math/big"

// RelativeDenominator is 100% expressed in hundred-thousandths
const RelativeDenominator = 100000

var relativeDenominator = big.NewInt(RelativeDenominator)

// ResolveAllowance computes how much of a source's remaining power a single
// subdelegation moves, and what remains afterwards.
//
// Absolute grants move min(allowance, remaining). Relative grants move
// floor(direct*allowance/100000) capped at remaining, except that an allowance
// above 100% moves everything that remains. The result never exceeds
// remaining, so newRemaining is never negative.
func ResolveAllowance(t AllowanceType, allowance, sourceDirect, sourceRemaining *big.Int) (delegated, newRemaining *big.Int) {
	remaining := nonNegative(sourceRemaining)

	switch t {
	case Relative:
		if allowance.Cmp(relativeDenominator) > 0 {
			delegated = new(big.Int).Set(remaining)
			break
		}
		share := new(big.Int).Mul(nonNegative(sourceDirect), allowance)
		share.Quo(share, relativeDenominator)
		delegated = minInt(share, remaining)
	default:
		delegated = minInt(allowance, remaining)
	}

	newRemaining = new(big.Int).Sub(remaining, delegated)
	return delegated, newRemaining
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func nonNegative(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}
