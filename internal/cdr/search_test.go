package cdr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/resolver"
)

// mockSource serves canned rows per identifier and records fetch calls.
type mockSource struct {
	mu      sync.Mutex
	rows    map[string][]resolver.Record
	errs    map[string]error
	delay   time.Duration
	fetches []string
}

func (m *mockSource) Fetch(ctx context.Context, query Query) ([]resolver.Record, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, query.Identifier)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.errs[query.Identifier]; err != nil {
		return nil, err
	}
	return m.rows[query.Identifier], nil
}

func testSearcher(source Source) *Searcher {
	cfg := config.SearchConfig{MaxConcurrentFetches: 4, FetchTimeout: time.Second, MaxTrackedIdentifiers: 10}
	return NewSearcher(source, cfg, slog.Default())
}

func voiceRow(caller, callee string) resolver.Record {
	return resolver.Record{
		"lat": "14.5", "long": "-17.3", "nom": "DAKAR-1",
		"type": "Voix", "caller": caller, "callee": callee,
		"duration": "2m30s", "date": "2024-03-01", "heure": "08:00:00",
	}
}

func numberQuery(number string) Query {
	return Query{IdentifierType: IdentifierNumber, Identifier: number}
}

func TestSearcher_Search(t *testing.T) {
	t.Run("End To End Single Identifier", func(t *testing.T) {
		source := &mockSource{rows: map[string][]resolver.Record{
			"221771234567": {voiceRow("221771234567", "221781234567")},
		}}
		searcher := testSearcher(source)

		result, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("221771234567")},
		})
		require.NoError(t, err)
		require.Len(t, result.Points, 1)

		point := result.Points[0]
		assert.Equal(t, "14.5", point.Latitude)
		assert.Equal(t, "-17.3", point.Longitude)
		assert.Equal(t, "outgoing", point.Direction)

		require.Len(t, result.Aggregate.Contacts, 1)
		contact := result.Aggregate.Contacts[0]
		assert.Equal(t, "221781234567", contact.Number)
		assert.Equal(t, 1, contact.CallCount)
		assert.Equal(t, 150, contact.CallDurationSeconds)
	})

	t.Run("Fan Out All Identifiers", func(t *testing.T) {
		source := &mockSource{rows: map[string][]resolver.Record{
			"771111111": {voiceRow("771111111", "785555555")},
			"772222222": {voiceRow("772222222", "785555555")},
		}}
		searcher := testSearcher(source)

		result, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111"), numberQuery("772222222")},
		})
		require.NoError(t, err)
		assert.Len(t, source.fetches, 2, "one fetch per tracked identifier")
		assert.Len(t, result.Points, 2)
		require.Len(t, result.Aggregate.Contacts, 1)
		assert.Equal(t, 2, result.Aggregate.Contacts[0].CallCount)
	})

	t.Run("Timeout Treated As No Data", func(t *testing.T) {
		source := &mockSource{
			rows: map[string][]resolver.Record{
				"771111111": {voiceRow("771111111", "785555555")},
			},
			errs: map[string]error{"772222222": context.DeadlineExceeded},
		}
		searcher := testSearcher(source)

		result, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111"), numberQuery("772222222")},
		})
		require.NoError(t, err, "a timed-out identifier must not fail the aggregate")
		assert.Len(t, result.Points, 1)
	})

	t.Run("Upstream Failure Is Retryable Error", func(t *testing.T) {
		source := &mockSource{
			rows: map[string][]resolver.Record{
				"771111111": {voiceRow("771111111", "785555555")},
			},
			errs: map[string]error{"772222222": errors.New("connection refused")},
		}
		searcher := testSearcher(source)

		_, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111"), numberQuery("772222222")},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream, "partial results must not be merged")
	})

	t.Run("Empty Result Is Explicit", func(t *testing.T) {
		source := &mockSource{rows: map[string][]resolver.Record{}}
		searcher := testSearcher(source)

		_, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111")},
		})
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("Cancellation Abandons Search", func(t *testing.T) {
		source := &mockSource{delay: 200 * time.Millisecond, rows: map[string][]resolver.Record{
			"771111111": {voiceRow("771111111", "785555555")},
		}}
		searcher := testSearcher(source)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := searcher.Search(ctx, SearchRequest{
			Identifiers: []Query{numberQuery("771111111")},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)

		// A subsequent search on the same searcher is unaffected.
		result, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111")},
		})
		require.NoError(t, err)
		assert.Len(t, result.Points, 1)
	})

	t.Run("Non Spatial Rows Count Toward Contacts", func(t *testing.T) {
		row := voiceRow("771111111", "785555555")
		delete(row, "lat")
		delete(row, "long")
		source := &mockSource{rows: map[string][]resolver.Record{"771111111": {row}}}
		searcher := testSearcher(source)

		result, err := searcher.Search(context.Background(), SearchRequest{
			Identifiers: []Query{numberQuery("771111111")},
		})
		require.NoError(t, err)
		assert.Empty(t, result.Points, "coordinate-less rows stay out of the spatial set")
		require.Len(t, result.Aggregate.Contacts, 1)
		assert.Equal(t, 1, result.Dropped)
	})

	t.Run("No Identifiers Rejected", func(t *testing.T) {
		searcher := testSearcher(&mockSource{})
		_, err := searcher.Search(context.Background(), SearchRequest{})
		assert.Error(t, err)
	})
}
