package snapshot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/web/snapshot"
)

func TestNewDelegatesCriteria(t *testing.T) {
	t.Parallel()

	t.Run("it applies defaults for empty values", func(t *testing.T) {
		t.Parallel()

		// Act
		criteria, err := snapshot.NewDelegatesCriteria("", time.Time{}, 0, 0)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, attester.WithPartialVP, criteria.Pipeline)
		assert.True(t, criteria.Date.IsZero())
		assert.Equal(t, uint64(snapshot.DefaultPage), criteria.Page.Uint64())
		assert.Equal(t, uint64(snapshot.DefaultPerPage), criteria.ItemsPerPage())
		assert.Zero(t, criteria.ItemsToSkip())
	})

	t.Run("it skips the rows of earlier pages", func(t *testing.T) {
		t.Parallel()

		// Act
		criteria, err := snapshot.NewDelegatesCriteria("without_partial_vp", time.Time{}, 3, 20)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, attester.WithoutPartialVP, criteria.Pipeline)
		assert.Equal(t, uint64(40), criteria.ItemsToSkip())
	})

	t.Run("it rejects unknown pipelines", func(t *testing.T) {
		t.Parallel()

		// Act
		_, err := snapshot.NewDelegatesCriteria("partial", time.Time{}, 1, 10)

		// Assert
		assert.ErrorIs(t, err, snapshot.ErrInvalidPipeline)
		assert.ErrorIs(t, err, attester.ErrUnknownPipeline)
	})

	t.Run("it rejects pages larger than the maximum", func(t *testing.T) {
		t.Parallel()

		// Act
		_, err := snapshot.NewDelegatesCriteria("", time.Time{}, 1, snapshot.MaxPerPage+1)

		// Assert
		assert.ErrorIs(t, err, snapshot.ErrInvalidPerPage)
		assert.ErrorIs(t, err, snapshot.ErrPerPageTooLarge)
	})
}

func TestDelegatesPageNavigation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		number       snapshot.Page
		hasMore      bool
		wantPrevious bool
		wantNext     bool
	}{
		{name: "only page", number: 1, hasMore: false, wantPrevious: false, wantNext: false},
		{name: "first of many", number: 1, hasMore: true, wantPrevious: false, wantNext: true},
		{name: "middle page", number: 2, hasMore: true, wantPrevious: true, wantNext: true},
		{name: "last page", number: 3, hasMore: false, wantPrevious: true, wantNext: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			page := &snapshot.DelegatesPage{Number: tc.number, HasMore: tc.hasMore}

			// Act & Assert
			assert.Equal(t, tc.wantPrevious, page.HasPrevious())
			assert.Equal(t, tc.wantNext, page.HasNext())
		})
	}
}

func TestParsePerPage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   uint64
		want    snapshot.PerPage
		wantErr bool
	}{
		{name: "zero defaults", input: 0, want: snapshot.DefaultPerPage},
		{name: "minimum", input: 1, want: 1},
		{name: "maximum", input: snapshot.MaxPerPage, want: snapshot.MaxPerPage},
		{name: "one above maximum", input: snapshot.MaxPerPage + 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got, err := snapshot.ParsePerPage(tc.input)

			// Assert
			if tc.wantErr {
				assert.ErrorIs(t, err, snapshot.ErrPerPageTooLarge)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
