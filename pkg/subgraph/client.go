// Package subgraph fetches governance token and Alligator records from the indexing subgraph
package subgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/machinebox/graphql"
)

// Sentinel errors for subgraph requests
var (
	ErrRequestFailed     = errors.New("subgraph request failed")
	ErrRetriesExhausted  = errors.New("subgraph retries exhausted")
	ErrMissingPageCursor = errors.New("subgraph page without cursor")
)

// Default client settings
const (
	DefaultPageSize    = 1000
	DefaultMaxAttempts = 5
)

// Option configures the Client
type Option func(*Client)

// WithPageSize sets the number of records requested per page; n < 1 keeps the default
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxAttempts sets how many times a page request is tried before giving up; n < 1 keeps the default
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay bounds between retries
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.minDelay = minDelay
		c.maxDelay = maxDelay
	}
}

// Client represents a subgraph GraphQL client
type Client struct {
	gql         *graphql.Client
	apiKey      string
	pageSize    int
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
}

// NewClient creates a subgraph client with custom HTTP client and endpoint
func NewClient(httpClient *http.Client, endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		gql:         graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient)),
		apiKey:      apiKey,
		pageSize:    DefaultPageSize,
		maxAttempts: DefaultMaxAttempts,
		minDelay:    500 * time.Millisecond,
		maxDelay:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DailyDelegates returns every delegate snapshot recorded for the UTC day
func (c *Client) DailyDelegates(ctx context.Context, day time.Time) ([]DailyDelegate, error) {
	return fetchAll(ctx, c, dailyDelegatesQuery, map[string]any{
		"date": dayStart(day),
	}, func(d DailyDelegate) string { return d.ID })
}

// DailyBalances returns every account balance snapshot recorded for the UTC day
func (c *Client) DailyBalances(ctx context.Context, day time.Time) ([]DailyBalance, error) {
	return fetchAll(ctx, c, dailyBalancesQuery, map[string]any{
		"date": dayStart(day),
	}, func(b DailyBalance) string { return b.ID })
}

// SubDelegations returns subdelegation events with from <= blockTimestamp < to
func (c *Client) SubDelegations(ctx context.Context, from, to time.Time) ([]SubDelegation, error) {
	return fetchAll(ctx, c, subDelegationsQuery, map[string]any{
		"from": fmt.Sprintf("%d", from.Unix()),
		"to":   fmt.Sprintf("%d", to.Unix()),
	}, func(s SubDelegation) string { return s.ID })
}

type page[T any] struct {
	Items []T `json:"items"`
}

// fetchAll walks a collection with id_gt cursor pagination
func fetchAll[T any](ctx context.Context, c *Client, query string, vars map[string]any, id func(T) string) ([]T, error) {
	var all []T
	lastID := ""

	for {
		req := graphql.NewRequest(query)
		for k, v := range vars {
			req.Var(k, v)
		}
		req.Var("first", c.pageSize)
		req.Var("lastID", lastID)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		var resp page[T]
		if err := c.run(ctx, req, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Items...)
		if len(resp.Items) < c.pageSize {
			return all, nil
		}

		next := id(resp.Items[len(resp.Items)-1])
		if next == "" || next == lastID {
			return nil, ErrMissingPageCursor
		}
		lastID = next
	}
}

// run executes a request, retrying failures with exponential backoff
func (c *Client) run(ctx context.Context, req *graphql.Request, resp any) error {
	b := &backoff.Backoff{
		Min:    c.minDelay,
		Max:    c.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := c.gql.Run(ctx, req, resp)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%w: %w", ErrRequestFailed, err)
		if attempt == c.maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

func dayStart(day time.Time) int64 {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
