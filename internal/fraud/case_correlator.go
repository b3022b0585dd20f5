package fraud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/resolver"
)

// CaseCorrelator classifies device/number associations within one case as
// expected or newly observed.
type CaseCorrelator struct {
	store  Store
	logger *slog.Logger
}

// NewCaseCorrelator creates a case-scoped fraud correlator.
func NewCaseCorrelator(store Store, logger *slog.Logger) *CaseCorrelator {
	return &CaseCorrelator{store: store, logger: logger}
}

// Detect builds, for each IMEI of the case touched by the given numbers,
// the set of associated numbers with first/last-seen bounds, occurrence
// counts, inferred roles and an expected/new status against the case's
// baseline. IMEIs and their numbers keep the order they were first
// encountered in the underlying query result, so highlighting stays
// visually stable across sequential runs. dateRange restricts the reported
// observations; the baseline always covers the case's full history.
func (c *CaseCorrelator) Detect(ctx context.Context, caseID string, numbers []string, dateRange cdr.DateRange) (*CaseReport, error) {
	if caseID == "" {
		return nil, fmt.Errorf("case id is required")
	}

	history, err := c.store.CaseAssociations(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case associations: %w", err)
	}

	tracked := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if key := resolver.SubscriberKey(n); key != "" {
			tracked[key] = struct{}{}
		}
	}

	// IMEIs of interest: devices that involve at least one of the given
	// numbers anywhere in the case history.
	relevant := make(map[string]struct{})
	for _, assoc := range history {
		if assoc.Imei == "" {
			continue
		}
		if _, ok := tracked[resolver.SubscriberKey(assoc.Number)]; ok {
			relevant[assoc.Imei] = struct{}{}
		}
	}

	historyByImei := make(map[string][]Association)
	for _, assoc := range history {
		if _, ok := relevant[assoc.Imei]; ok {
			historyByImei[assoc.Imei] = append(historyByImei[assoc.Imei], assoc)
		}
	}

	report := &CaseReport{CaseID: caseID}
	entriesByImei := make(map[string]*ImeiEntry)
	numbersByImei := make(map[string]map[string]*NumberEntry)

	for _, assoc := range history {
		if _, ok := relevant[assoc.Imei]; !ok {
			continue
		}
		if !dateRange.IsZero() && !dateRange.Contains(assoc.ObservedAt) {
			continue
		}
		if assoc.Number == "" {
			continue
		}

		entry, exists := entriesByImei[assoc.Imei]
		if !exists {
			entry = &ImeiEntry{Imei: assoc.Imei}
			entriesByImei[assoc.Imei] = entry
			numbersByImei[assoc.Imei] = make(map[string]*NumberEntry)
			report.Imeis = append(report.Imeis, entry)
		}

		numberEntry, exists := numbersByImei[assoc.Imei][assoc.Number]
		if !exists {
			numberEntry = &NumberEntry{
				Number:    assoc.Number,
				FirstSeen: assoc.ObservedAt,
				LastSeen:  assoc.ObservedAt,
			}
			numbersByImei[assoc.Imei][assoc.Number] = numberEntry
			entry.Numbers = append(entry.Numbers, numberEntry)
		}

		numberEntry.Occurrences++
		if assoc.ObservedAt.Before(numberEntry.FirstSeen) {
			numberEntry.FirstSeen = assoc.ObservedAt
		}
		if assoc.ObservedAt.After(numberEntry.LastSeen) {
			numberEntry.LastSeen = assoc.ObservedAt
		}
		if assoc.Role == RoleCallee {
			numberEntry.Roles = appendRole(numberEntry.Roles, RoleCallee)
		} else {
			numberEntry.Roles = appendRole(numberEntry.Roles, RoleCaller)
		}
		if _, ok := tracked[resolver.SubscriberKey(assoc.Number)]; ok {
			numberEntry.Roles = appendRole(numberEntry.Roles, RoleTarget)
		}
	}

	// Classify against the per-device baseline over the full case history.
	for _, entry := range report.Imeis {
		expected := ExpectedNumber(historyByImei[entry.Imei])
		for _, numberEntry := range entry.Numbers {
			if numberEntry.Number == expected {
				numberEntry.Status = StatusExpected
			} else {
				numberEntry.Status = StatusNew
			}
		}
	}

	c.logger.Debug("Case fraud detection completed",
		"case_id", caseID,
		"imeis", len(report.Imeis))

	return report, nil
}

func appendRole(roles []Role, role Role) []Role {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}
