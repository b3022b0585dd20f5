package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/resolver"
)

type stubSource struct {
	rows map[string][]resolver.Record
	err  error
}

func (s *stubSource) Fetch(_ context.Context, query cdr.Query) ([]resolver.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[query.Identifier], nil
}

func testBuilder(source cdr.Source) *Builder {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.DiagramConfig{
		AllowedPrefixes: []string{"70", "75", "76", "77", "78"},
		MaxRootNumbers:  5,
	}
	return NewBuilder(source, cfg, logger)
}

func callRow(caller, callee, callType string) resolver.Record {
	return resolver.Record{
		"appelant": caller,
		"appele":   callee,
		"type_cdr": callType,
	}
}

func TestBuildAggregatesOrderedPairs(t *testing.T) {
	source := &stubSource{rows: map[string][]resolver.Record{
		"771234567": {
			callRow("221771234567", "221709999999", "Voix"),
			callRow("221771234567", "221709999999", "Voix"),
			callRow("221771234567", "221709999999", "SMS"),
			callRow("221709999999", "221771234567", "Voix"),
		},
	}}
	builder := testBuilder(source)

	diagram, err := builder.Build(context.Background(), []string{"221771234567"}, cdr.DateRange{})
	require.NoError(t, err)

	require.Len(t, diagram.Nodes, 2)
	assert.Equal(t, "771234567", diagram.Nodes[0].ID, "root node sorts first")
	assert.Equal(t, NodeRoot, diagram.Nodes[0].Type)
	assert.Equal(t, NodeContact, diagram.Nodes[1].Type)
	assert.Equal(t, "771234567", diagram.Root)

	require.Len(t, diagram.Links, 2, "each direction is its own edge")
	outgoing := diagram.Links[1]
	incoming := diagram.Links[0]
	assert.Equal(t, "771234567", outgoing.Source)
	assert.Equal(t, 2, outgoing.CallCount)
	assert.Equal(t, 1, outgoing.SmsCount)
	assert.Equal(t, "709999999", incoming.Source)
	assert.Equal(t, 1, incoming.CallCount)
	assert.Equal(t, 0, incoming.SmsCount)
}

func TestBuildRejectsDisallowedPrefixes(t *testing.T) {
	builder := testBuilder(&stubSource{})

	_, err := builder.Build(context.Background(), []string{"221771234567", "221331234567", "abc"}, cdr.DateRange{})
	require.Error(t, err)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation, "prefix failures are structured rejections")
	assert.Equal(t, []string{"221331234567", "abc"}, validation.Rejected,
		"every offending token is reported, valid ones are not")
}

func TestBuildNoLinksIsExplicit(t *testing.T) {
	source := &stubSource{rows: map[string][]resolver.Record{
		"771234567": {
			// Self-call and a row with no counterpart: neither makes an edge.
			callRow("221771234567", "771234567", "Voix"),
			{"appelant": "221771234567", "type_cdr": "Voix"},
		},
	}}
	builder := testBuilder(source)

	_, err := builder.Build(context.Background(), []string{"221771234567"}, cdr.DateRange{})
	assert.ErrorIs(t, err, ErrNoLinks, "an empty graph must not look like success")
}

func TestBuildUpstreamFailure(t *testing.T) {
	builder := testBuilder(&stubSource{err: fmt.Errorf("connection refused")})

	_, err := builder.Build(context.Background(), []string{"221771234567"}, cdr.DateRange{})
	assert.ErrorIs(t, err, cdr.ErrUpstream)
}

func TestBuildMultipleRoots(t *testing.T) {
	source := &stubSource{rows: map[string][]resolver.Record{
		"771234567": {callRow("221771234567", "765550001", "Voix")},
		"781112233": {callRow("765550001", "221781112233", "SMS")},
	}}
	builder := testBuilder(source)

	diagram, err := builder.Build(context.Background(), []string{"221771234567", "781112233"}, cdr.DateRange{})
	require.NoError(t, err)

	assert.Empty(t, diagram.Root, "root hint only applies to single-root diagrams")
	require.Len(t, diagram.Nodes, 3)
	rootCount := 0
	for _, node := range diagram.Nodes {
		if node.Type == NodeRoot {
			rootCount++
		}
	}
	assert.Equal(t, 2, rootCount)
	require.Len(t, diagram.Links, 2)
}

func TestBuildEnforcesRootLimit(t *testing.T) {
	builder := testBuilder(&stubSource{})

	roots := []string{"770000001", "770000002", "770000003", "770000004", "770000005", "770000006"}
	_, err := builder.Build(context.Background(), roots, cdr.DateRange{})
	assert.Error(t, err)
}
