package votingpower

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for value parsing
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Address is a lower-case, 0x-prefixed hex account address.
// All identity comparisons in this package are made on the normalised form.
type Address string

// ParseAddress validates a hex address and normalises it to lower case
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(strings.ToLower(common.HexToAddress(s).Hex())), nil
}

// MustParseAddress is like ParseAddress but panics on error
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the address as a string
func (a Address) String() string {
	return string(a)
}

// Valid reports whether the address is already in normalised form
func (a Address) Valid() bool {
	n, err := ParseAddress(string(a))
	return err == nil && n == a
}

// ParseAmount parses a non-negative base-unit integer string
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, s)
	}
	return v, nil
}
