package cdr

import (
	"context"
	"errors"
	"time"

	"github.com/telesight/cdr-intel/internal/resolver"
)

// IdentifierType discriminates what kind of identifier a query tracks.
type IdentifierType string

const (
	IdentifierNumber IdentifierType = "number"
	IdentifierIMEI   IdentifierType = "imei"
	IdentifierIMSI   IdentifierType = "imsi"
)

// DateRange bounds a query in time. Zero values mean unbounded.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether the range carries no bound at all.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether ts falls inside the range.
func (r DateRange) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// TimeRange restricts a query to a daily clock window, "HH:MM" bounds.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Query describes one fetch against the external CDR source.
type Query struct {
	IdentifierType IdentifierType `json:"identifierType"`
	Identifier     string         `json:"identifier"`
	DateRange      DateRange      `json:"dateRange"`
	TimeRange      TimeRange      `json:"timeRange"`
}

// Source returns raw rows for a tracked identifier. The row schema is
// uncontrolled and must only be read through the resolver.
type Source interface {
	Fetch(ctx context.Context, query Query) ([]resolver.Record, error)
}

// Engine error taxonomy. ErrNoResults marks a syntactically valid query
// that matched nothing; ErrUpstream marks a retryable source failure.
var (
	ErrNoResults = errors.New("no results")
	ErrUpstream  = errors.New("upstream source unavailable")
)
