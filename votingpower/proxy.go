package votingpower

import (
	"context"
	"errors"
	"fmt"
)

// ErrProxyResolution marks a failed owner -> proxy lookup
var ErrProxyResolution = errors.New("proxy resolution failed")

// ProxyResolver looks up the delegation proxy of an owner
type ProxyResolver interface {
	ProxyAddress(ctx context.Context, owner Address) (Address, error)
}

// ProxyResolverFunc adapts a function to ProxyResolver
type ProxyResolverFunc func(ctx context.Context, owner Address) (Address, error)

// ProxyAddress calls f(ctx, owner)
func (f ProxyResolverFunc) ProxyAddress(ctx context.Context, owner Address) (Address, error) {
	return f(ctx, owner)
}

// ProxyCache memoises proxy lookups for the lifetime of one run.
// Proxy addresses are immutable per owner, so entries are never invalidated.
// It is not safe for concurrent use.
type ProxyCache struct {
	resolver ProxyResolver
	proxies  map[Address]Address
	calls    int
}

// NewProxyCache wraps resolver with a run-scoped memo
func NewProxyCache(resolver ProxyResolver) *ProxyCache {
	return &ProxyCache{
		resolver: resolver,
		proxies:  make(map[Address]Address),
	}
}

// Resolve returns the proxy for owner, calling the resolver at most once per owner
func (c *ProxyCache) Resolve(ctx context.Context, owner Address) (Address, error) {
	if proxy, ok := c.proxies[owner]; ok {
		return proxy, nil
	}

	c.calls++
	proxy, err := c.resolver.ProxyAddress(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("%w: owner %s: %w", ErrProxyResolution, owner, err)
	}
	normalised, err := ParseAddress(proxy.String())
	if err != nil {
		return "", fmt.Errorf("%w: owner %s: %w", ErrProxyResolution, owner, err)
	}

	c.proxies[owner] = normalised
	return normalised, nil
}

// Calls returns how many upstream lookups have been made
func (c *ProxyCache) Calls() int {
	return c.calls
}
