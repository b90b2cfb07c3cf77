// Package alligator resolves owner proxies through the Alligator contract
package alligator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/screwyprof/attester/votingpower"
)

// Sentinel errors for contract calls
var (
	ErrCallFailed     = errors.New("alligator call failed")
	ErrInvalidOutput  = errors.New("alligator returned unexpected output")
	ErrInvalidAddress = errors.New("invalid alligator address")
)

const proxyAddressABI = `[{
	"inputs": [{"internalType": "address", "name": "owner", "type": "address"}],
	"name": "proxyAddress",
	"outputs": [{"internalType": "address", "name": "endpoint", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}]`

var contractABI = mustParseABI(proxyAddressABI)

// Caller executes read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver asks the Alligator contract for an owner's proxy
type Resolver struct {
	caller   Caller
	contract common.Address
}

// NewResolver creates a resolver bound to the contract at address
func NewResolver(caller Caller, address string) (*Resolver, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return &Resolver{
		caller:   caller,
		contract: common.HexToAddress(address),
	}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint and returns a resolver using it.
// The returned close function releases the connection.
func Dial(ctx context.Context, rpcURL, address string) (*Resolver, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %w", ErrCallFailed, rpcURL, err)
	}

	r, err := NewResolver(client, address)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return r, client.Close, nil
}

// ProxyAddress implements votingpower.ProxyResolver
func (r *Resolver) ProxyAddress(ctx context.Context, owner votingpower.Address) (votingpower.Address, error) {
	data, err := contractABI.Pack("proxyAddress", common.HexToAddress(owner.String()))
	if err != nil {
		return "", fmt.Errorf("packing proxyAddress: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCallFailed, err)
	}

	values, err := contractABI.Unpack("proxyAddress", out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: %d values", ErrInvalidOutput, len(values))
	}
	proxy, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrInvalidOutput, values[0])
	}

	return votingpower.ParseAddress(proxy.Hex())
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
