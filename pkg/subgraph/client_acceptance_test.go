//go:build acceptance

package subgraph_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/pkg/subgraph"
	"github.com/screwyprof/attester/pkg/subgraph/testcfg"
)

func TestSubgraphClientRealAPI(t *testing.T) {
	t.Parallel()

	testCfg := testcfg.New()

	day, err := time.Parse(time.DateOnly, testCfg.Date)
	require.NoError(t, err)

	// Arrange
	client := subgraph.NewClient(&http.Client{
		Timeout: testCfg.HTTPTimeout,
	}, testCfg.Endpoint, testCfg.APIKey)

	// Act
	delegates, err := client.DailyDelegates(t.Context(), day)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, delegates, "Expected delegates recorded on %s", testCfg.Date)

	for i, d := range delegates {
		assert.Equal(t, subgraph.Int(day.Unix()), d.Date, "Delegate %d should belong to the requested day", i)
		assert.NotEmpty(t, d.Delegate, "Delegate %d should have an address", i)
		assert.NotEmpty(t, d.DirectVotingPower, "Delegate %d should have voting power", i)
	}
}
