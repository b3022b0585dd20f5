package cdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telesight/cdr-intel/internal/aggregate"
	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/normalize"
)

// SearchRequest is one logical search over one or more tracked identifiers.
type SearchRequest struct {
	Identifiers []Query   `json:"identifiers"`
	DateRange   DateRange `json:"dateRange"`
	TimeRange   TimeRange `json:"timeRange"`
}

// SearchResult carries the normalized points and the aggregates of one
// completed search. Points holds only spatially valid events; the contact
// aggregates also include coordinate-less events.
type SearchResult struct {
	SearchID  string                `json:"searchId"`
	Points    []*normalize.CdrPoint `json:"points"`
	Aggregate *aggregate.Result     `json:"aggregate"`
	Fetched   int                   `json:"fetched"`
	Dropped   int                   `json:"dropped"`
	Elapsed   time.Duration         `json:"elapsed"`
}

// Searcher fans one search out into one fetch per tracked identifier,
// normalizes the rows and folds them into aggregates. It is stateless and
// re-entrant: all per-search state lives on the stack of Search.
type Searcher struct {
	source Source
	cfg    config.SearchConfig
	logger *slog.Logger
}

// NewSearcher creates a new searcher over the given CDR source.
func NewSearcher(source Source, cfg config.SearchConfig, logger *slog.Logger) *Searcher {
	return &Searcher{source: source, cfg: cfg, logger: logger}
}

// Search runs one logical search. Fetches for the tracked identifiers are
// issued concurrently; aggregation waits for all of them, so a partially
// fetched search never produces a merged aggregate. A fetch that times out
// upstream contributes "no data for this identifier"; any other source
// failure fails the whole search as retryable. Cancelling ctx abandons the
// search without corrupting state for subsequent searches.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if len(req.Identifiers) == 0 {
		return nil, fmt.Errorf("search requires at least one tracked identifier")
	}
	if max := s.cfg.MaxTrackedIdentifiers; max > 0 && len(req.Identifiers) > max {
		return nil, fmt.Errorf("search exceeds %d tracked identifiers", max)
	}

	searchID := uuid.New().String()
	startTime := time.Now()

	s.logger.Info("Starting CDR search",
		"search_id", searchID,
		"identifiers", len(req.Identifiers))

	results := make([]fetchResult, len(req.Identifiers))
	sem := make(chan struct{}, s.concurrency())
	var wg sync.WaitGroup

	for i, query := range req.Identifiers {
		query := query
		if query.DateRange.IsZero() {
			query.DateRange = req.DateRange
		}
		if query.TimeRange == (TimeRange{}) {
			query.TimeRange = req.TimeRange
		}

		wg.Add(1)
		go func(index int, query Query) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[index] = fetchResult{tracked: query.Identifier, err: ctx.Err()}
				return
			}
			results[index] = s.fetchOne(ctx, query)
		}(i, query)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// All fetches belonging to the search completed: merge.
	trackedIdentifiers := make([]string, 0, len(req.Identifiers))
	var spatialPoints, contactPoints []*normalize.CdrPoint
	fetched, dropped := 0, 0
	for _, r := range results {
		if r.err != nil {
			if isUpstreamTimeout(r.err) {
				// Treated as no data for this identifier.
				s.logger.Warn("CDR fetch timed out, identifier skipped",
					"search_id", searchID, "tracked", r.tracked)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUpstream, r.err)
		}
		trackedIdentifiers = append(trackedIdentifiers, r.tracked)
		spatialPoints = append(spatialPoints, r.points...)
		contactPoints = append(contactPoints, r.points...)
		contactPoints = append(contactPoints, r.contactOnly...)
		fetched += r.fetched
		dropped += r.dropped
	}

	if len(contactPoints) == 0 {
		return nil, ErrNoResults
	}

	result := &SearchResult{
		SearchID:  searchID,
		Points:    spatialPoints,
		Aggregate: aggregate.Aggregate(contactPoints, trackedIdentifiers),
		Fetched:   fetched,
		Dropped:   dropped,
		Elapsed:   time.Since(startTime),
	}

	s.logger.Info("CDR search completed",
		"search_id", searchID,
		"fetched", result.Fetched,
		"spatial_points", len(result.Points),
		"contacts", len(result.Aggregate.Contacts),
		"elapsed", result.Elapsed)

	return result, nil
}

// fetchResult is the outcome of one identifier's fetch within a search.
type fetchResult struct {
	tracked     string
	points      []*normalize.CdrPoint
	contactOnly []*normalize.CdrPoint
	dropped     int
	fetched     int
	err         error
}

func (s *Searcher) fetchOne(ctx context.Context, query Query) (out fetchResult) {
	out.tracked = query.Identifier

	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	rows, err := s.source.Fetch(fetchCtx, query)
	if err != nil {
		out.err = err
		return out
	}

	out.fetched = len(rows)
	for _, row := range rows {
		point, spatial := normalize.NormalizePoint(row, query.Identifier)
		switch {
		case spatial:
			out.points = append(out.points, point)
		case point.Caller != "" || point.Callee != "" || point.Number != "":
			out.contactOnly = append(out.contactOnly, point)
			out.dropped++
		default:
			out.dropped++
		}
	}
	return out
}

func (s *Searcher) concurrency() int {
	if s.cfg.MaxConcurrentFetches > 0 {
		return s.cfg.MaxConcurrentFetches
	}
	return 4
}

func isUpstreamTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
