package fraud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telesight/cdr-intel/internal/cdr"
)

// GlobalCorrelator finds device reuse and SIM swapping across all cases.
type GlobalCorrelator struct {
	store  Store
	logger *slog.Logger
}

// NewGlobalCorrelator creates a cross-case fraud correlator.
func NewGlobalCorrelator(store Store, logger *slog.Logger) *GlobalCorrelator {
	return &GlobalCorrelator{store: store, logger: logger}
}

// Detect searches every case for the identifier's cross-associations. For a
// number it finds every IMEI ever seen with it; for an IMEI every number.
// Each cross-identifier then enumerates the other identifiers sharing it,
// annotated with the cases it was observed in and caller/callee tallies.
// Both views are always computed and returned together.
func (g *GlobalCorrelator) Detect(ctx context.Context, identifier string, identifierType cdr.IdentifierType, dateRange cdr.DateRange) (*GlobalReport, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}

	report := &GlobalReport{Identifier: identifier, IdentifierType: identifierType}

	var err error
	switch identifierType {
	case cdr.IdentifierIMEI:
		err = g.detectByImei(ctx, identifier, dateRange, report)
	default:
		err = g.detectByNumber(ctx, identifier, dateRange, report)
	}
	if err != nil {
		return nil, err
	}

	if err := g.attachCaseInfo(ctx, report); err != nil {
		return nil, err
	}

	g.logger.Debug("Global fraud detection completed",
		"identifier", identifier,
		"type", string(identifierType),
		"imeis", len(report.Imeis),
		"numbers", len(report.Numbers))

	return report, nil
}

// detectByNumber builds the device-sharing view from the devices seen with
// the number, then the SIM-swap view from the other numbers under them.
func (g *GlobalCorrelator) detectByNumber(ctx context.Context, number string, dateRange cdr.DateRange, report *GlobalReport) error {
	own, err := g.store.AssociationsByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to load associations for number: %w", err)
	}
	own = filterRange(own, dateRange)

	imeis := orderedImeis(own)
	shared, err := g.store.AssociationsByImeis(ctx, imeis)
	if err != nil {
		return fmt.Errorf("failed to load shared associations: %w", err)
	}
	shared = filterRange(shared, dateRange)

	report.Imeis = buildImeiEntries(imeis, shared)

	otherNumbers := make([]string, 0)
	for _, entry := range report.Imeis {
		for _, summary := range entry.Numbers {
			if summary.Number != number {
				otherNumbers = appendUnique(otherNumbers, summary.Number)
			}
		}
	}

	crossed, err := g.store.AssociationsByNumbers(ctx, otherNumbers)
	if err != nil {
		return fmt.Errorf("failed to load cross associations: %w", err)
	}
	crossed = filterRange(crossed, dateRange)

	report.Numbers = buildNumberEntries(otherNumbers, crossed)
	return nil
}

// detectByImei is the symmetric walk starting from a device.
func (g *GlobalCorrelator) detectByImei(ctx context.Context, imei string, dateRange cdr.DateRange, report *GlobalReport) error {
	own, err := g.store.AssociationsByImei(ctx, imei)
	if err != nil {
		return fmt.Errorf("failed to load associations for imei: %w", err)
	}
	own = filterRange(own, dateRange)

	numbers := orderedNumbers(own)
	shared, err := g.store.AssociationsByNumbers(ctx, numbers)
	if err != nil {
		return fmt.Errorf("failed to load shared associations: %w", err)
	}
	shared = filterRange(shared, dateRange)

	report.Numbers = buildNumberEntries(numbers, shared)

	otherImeis := make([]string, 0)
	for _, entry := range report.Numbers {
		for _, summary := range entry.Imeis {
			if summary.Imei != imei {
				otherImeis = appendUnique(otherImeis, summary.Imei)
			}
		}
	}

	crossed, err := g.store.AssociationsByImeis(ctx, otherImeis)
	if err != nil {
		return fmt.Errorf("failed to load cross associations: %w", err)
	}
	crossed = filterRange(crossed, dateRange)

	report.Imeis = buildImeiEntries(otherImeis, crossed)
	return nil
}

// buildImeiEntries groups associations per device, keeping the given device
// order and the first-encounter order of numbers under each device.
func buildImeiEntries(imeis []string, assocs []Association) []*GlobalImeiEntry {
	entries := make([]*GlobalImeiEntry, 0, len(imeis))
	byImei := make(map[string]*GlobalImeiEntry, len(imeis))
	for _, imei := range imeis {
		entry := &GlobalImeiEntry{Imei: imei}
		byImei[imei] = entry
		entries = append(entries, entry)
	}

	summaries := make(map[string]map[string]*GlobalNumberSummary)
	caseSeen := make(map[string]map[string]struct{})
	for _, assoc := range assocs {
		entry, ok := byImei[assoc.Imei]
		if !ok || assoc.Number == "" {
			continue
		}
		if summaries[assoc.Imei] == nil {
			summaries[assoc.Imei] = make(map[string]*GlobalNumberSummary)
			caseSeen[assoc.Imei] = make(map[string]struct{})
		}
		if assoc.CaseID != "" {
			if _, seen := caseSeen[assoc.Imei][assoc.CaseID]; !seen {
				caseSeen[assoc.Imei][assoc.CaseID] = struct{}{}
				entry.Cases = append(entry.Cases, CaseInfo{ID: assoc.CaseID})
			}
		}

		summary, ok := summaries[assoc.Imei][assoc.Number]
		if !ok {
			summary = &GlobalNumberSummary{Number: assoc.Number}
			summaries[assoc.Imei][assoc.Number] = summary
			entry.Numbers = append(entry.Numbers, summary)
		}
		tallyRole(&summary.CallerCount, &summary.CalleeCount, assoc.Role)
		summary.Cases = appendCase(summary.Cases, assoc.CaseID)
	}
	return entries
}

// buildNumberEntries is the symmetric grouping per number.
func buildNumberEntries(numbers []string, assocs []Association) []*GlobalNumberEntry {
	entries := make([]*GlobalNumberEntry, 0, len(numbers))
	byNumber := make(map[string]*GlobalNumberEntry, len(numbers))
	for _, number := range numbers {
		entry := &GlobalNumberEntry{Number: number}
		byNumber[number] = entry
		entries = append(entries, entry)
	}

	summaries := make(map[string]map[string]*GlobalImeiSummary)
	caseSeen := make(map[string]map[string]struct{})
	for _, assoc := range assocs {
		entry, ok := byNumber[assoc.Number]
		if !ok || assoc.Imei == "" {
			continue
		}
		if summaries[assoc.Number] == nil {
			summaries[assoc.Number] = make(map[string]*GlobalImeiSummary)
			caseSeen[assoc.Number] = make(map[string]struct{})
		}
		if assoc.CaseID != "" {
			if _, seen := caseSeen[assoc.Number][assoc.CaseID]; !seen {
				caseSeen[assoc.Number][assoc.CaseID] = struct{}{}
				entry.Cases = append(entry.Cases, CaseInfo{ID: assoc.CaseID})
			}
		}

		summary, ok := summaries[assoc.Number][assoc.Imei]
		if !ok {
			summary = &GlobalImeiSummary{Imei: assoc.Imei}
			summaries[assoc.Number][assoc.Imei] = summary
			entry.Imeis = append(entry.Imeis, summary)
		}
		tallyRole(&summary.CallerCount, &summary.CalleeCount, assoc.Role)
		summary.Cases = appendCase(summary.Cases, assoc.CaseID)
	}
	return entries
}

// attachCaseInfo resolves the metadata of every case id referenced in the
// report in one store round trip.
func (g *GlobalCorrelator) attachCaseInfo(ctx context.Context, report *GlobalReport) error {
	ids := make([]string, 0)
	collect := func(cases []CaseInfo) {
		for _, c := range cases {
			ids = appendUnique(ids, c.ID)
		}
	}
	for _, entry := range report.Imeis {
		collect(entry.Cases)
		for _, s := range entry.Numbers {
			collect(s.Cases)
		}
	}
	for _, entry := range report.Numbers {
		collect(entry.Cases)
		for _, s := range entry.Imeis {
			collect(s.Cases)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	infos, err := g.store.Cases(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to resolve case metadata: %w", err)
	}

	enrich := func(cases []CaseInfo) {
		for i, c := range cases {
			if info, ok := infos[c.ID]; ok {
				cases[i] = info
			}
		}
	}
	for _, entry := range report.Imeis {
		enrich(entry.Cases)
		for _, s := range entry.Numbers {
			enrich(s.Cases)
		}
	}
	for _, entry := range report.Numbers {
		enrich(entry.Cases)
		for _, s := range entry.Imeis {
			enrich(s.Cases)
		}
	}
	return nil
}

func filterRange(assocs []Association, dateRange cdr.DateRange) []Association {
	if dateRange.IsZero() {
		return assocs
	}
	filtered := assocs[:0:0]
	for _, assoc := range assocs {
		if dateRange.Contains(assoc.ObservedAt) {
			filtered = append(filtered, assoc)
		}
	}
	return filtered
}

func orderedImeis(assocs []Association) []string {
	imeis := make([]string, 0)
	for _, assoc := range assocs {
		if assoc.Imei != "" {
			imeis = appendUnique(imeis, assoc.Imei)
		}
	}
	return imeis
}

func orderedNumbers(assocs []Association) []string {
	numbers := make([]string, 0)
	for _, assoc := range assocs {
		if assoc.Number != "" {
			numbers = appendUnique(numbers, assoc.Number)
		}
	}
	return numbers
}

func appendUnique(values []string, value string) []string {
	if value == "" {
		return values
	}
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func appendCase(cases []CaseInfo, caseID string) []CaseInfo {
	if caseID == "" {
		return cases
	}
	for _, c := range cases {
		if c.ID == caseID {
			return cases
		}
	}
	return append(cases, CaseInfo{ID: caseID})
}

func tallyRole(caller, callee *int, role Role) {
	if role == RoleCallee {
		*callee++
	} else {
		*caller++
	}
}
