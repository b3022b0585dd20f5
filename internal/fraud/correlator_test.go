package fraud

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telesight/cdr-intel/internal/cdr"
)

// memoryStore serves canned associations for correlator tests.
type memoryStore struct {
	byCase map[string][]Association
	all    []Association
	cases  map[string]CaseInfo
}

func (m *memoryStore) CaseAssociations(_ context.Context, caseID string) ([]Association, error) {
	return m.byCase[caseID], nil
}

func (m *memoryStore) AssociationsByNumber(_ context.Context, number string) ([]Association, error) {
	return m.filter(func(a Association) bool { return a.Number == number }), nil
}

func (m *memoryStore) AssociationsByImei(_ context.Context, imei string) ([]Association, error) {
	return m.filter(func(a Association) bool { return a.Imei == imei }), nil
}

func (m *memoryStore) AssociationsByImeis(_ context.Context, imeis []string) ([]Association, error) {
	set := toSet(imeis)
	return m.filter(func(a Association) bool { _, ok := set[a.Imei]; return ok }), nil
}

func (m *memoryStore) AssociationsByNumbers(_ context.Context, numbers []string) ([]Association, error) {
	set := toSet(numbers)
	return m.filter(func(a Association) bool { _, ok := set[a.Number]; return ok }), nil
}

func (m *memoryStore) Cases(_ context.Context, caseIDs []string) (map[string]CaseInfo, error) {
	out := make(map[string]CaseInfo)
	for _, id := range caseIDs {
		if info, ok := m.cases[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (m *memoryStore) filter(keep func(Association) bool) []Association {
	var out []Association
	for _, a := range m.all {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func at(day int) time.Time {
	return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestExpectedNumber(t *testing.T) {
	t.Run("Most Frequent Wins", func(t *testing.T) {
		history := []Association{
			{Number: "771111111", ObservedAt: at(1)},
			{Number: "782222222", ObservedAt: at(2)},
			{Number: "782222222", ObservedAt: at(3)},
		}
		assert.Equal(t, "782222222", ExpectedNumber(history))
	})

	t.Run("Tie Falls Back To Earliest", func(t *testing.T) {
		history := []Association{
			{Number: "771111111", ObservedAt: at(1)},
			{Number: "782222222", ObservedAt: at(2)},
			{Number: "782222222", ObservedAt: at(3)},
			{Number: "771111111", ObservedAt: at(4)},
		}
		assert.Equal(t, "771111111", ExpectedNumber(history), "equal frequency resolves to earliest first-seen")
	})

	t.Run("Empty History", func(t *testing.T) {
		assert.Equal(t, "", ExpectedNumber(nil))
	})
}

func TestCaseCorrelator_Detect(t *testing.T) {
	imei := "350000000000001"
	store := &memoryStore{byCase: map[string][]Association{
		"case-1": {
			{CaseID: "case-1", Imei: imei, Number: "771234567", Role: RoleCaller, ObservedAt: at(1)},
			{CaseID: "case-1", Imei: imei, Number: "771234567", Role: RoleCaller, ObservedAt: at(2)},
			{CaseID: "case-1", Imei: imei, Number: "789999999", Role: RoleCallee, ObservedAt: at(5)},
		},
	}}
	correlator := NewCaseCorrelator(store, slog.Default())

	t.Run("Expected Versus New", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"}, cdr.DateRange{})
		require.NoError(t, err)
		require.Len(t, report.Imeis, 1)

		entry := report.Imeis[0]
		assert.Equal(t, imei, entry.Imei)
		require.Len(t, entry.Numbers, 2)

		baseline := entry.Numbers[0]
		assert.Equal(t, "771234567", baseline.Number)
		assert.Equal(t, StatusExpected, baseline.Status)
		assert.Equal(t, 2, baseline.Occurrences)
		assert.Contains(t, baseline.Roles, RoleTarget)

		newcomer := entry.Numbers[1]
		assert.Equal(t, "789999999", newcomer.Number)
		assert.Equal(t, StatusNew, newcomer.Status)
		assert.Contains(t, newcomer.Roles, RoleCallee)
	})

	t.Run("Status Stable Across Reruns", func(t *testing.T) {
		first, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"}, cdr.DateRange{})
		require.NoError(t, err)
		second, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"}, cdr.DateRange{})
		require.NoError(t, err)

		for i := range first.Imeis {
			for j := range first.Imeis[i].Numbers {
				assert.Equal(t, first.Imeis[i].Numbers[j].Status, second.Imeis[i].Numbers[j].Status,
					"an unchanged dataset never flips attendu to nouveau")
			}
		}
	})

	t.Run("First Last Seen Bounds", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"}, cdr.DateRange{})
		require.NoError(t, err)
		baseline := report.Imeis[0].Numbers[0]
		assert.Equal(t, at(1), baseline.FirstSeen)
		assert.Equal(t, at(2), baseline.LastSeen)
	})

	t.Run("Date Range Restricts Report Not Baseline", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"},
			cdr.DateRange{From: at(4), To: at(6)})
		require.NoError(t, err)
		require.Len(t, report.Imeis, 1)
		require.Len(t, report.Imeis[0].Numbers, 1)

		entry := report.Imeis[0].Numbers[0]
		assert.Equal(t, "789999999", entry.Number)
		assert.Equal(t, StatusNew, entry.Status,
			"baseline from full history still marks the newcomer as nouveau")
	})

	t.Run("Unrelated Device Excluded", func(t *testing.T) {
		store.byCase["case-1"] = append(store.byCase["case-1"],
			Association{CaseID: "case-1", Imei: "350000000000999", Number: "760000000", Role: RoleCaller, ObservedAt: at(3)})
		report, err := correlator.Detect(context.Background(), "case-1", []string{"771234567"}, cdr.DateRange{})
		require.NoError(t, err)
		assert.Len(t, report.Imeis, 1, "devices never involving a tracked number stay out")
	})

	t.Run("Missing Case ID Rejected", func(t *testing.T) {
		_, err := correlator.Detect(context.Background(), "", nil, cdr.DateRange{})
		assert.Error(t, err)
	})
}

func TestGlobalCorrelator_Detect(t *testing.T) {
	imeiA := "350000000000001"
	imeiB := "350000000000002"
	store := &memoryStore{
		all: []Association{
			{CaseID: "case-1", Imei: imeiA, Number: "771234567", Role: RoleCaller, ObservedAt: at(1)},
			{CaseID: "case-1", Imei: imeiA, Number: "789999999", Role: RoleCallee, ObservedAt: at(2)},
			{CaseID: "case-2", Imei: imeiB, Number: "771234567", Role: RoleCaller, ObservedAt: at(3)},
			{CaseID: "case-2", Imei: imeiB, Number: "760000000", Role: RoleCaller, ObservedAt: at(4)},
		},
		cases: map[string]CaseInfo{
			"case-1": {ID: "case-1", Name: "Operation Alpha", Owner: "analyst1", Division: "DIC"},
			"case-2": {ID: "case-2", Name: "Operation Beta", Owner: "analyst2", Division: "BR"},
		},
	}
	correlator := NewGlobalCorrelator(store, slog.Default())

	t.Run("By Number Returns Both Views", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "771234567", cdr.IdentifierNumber, cdr.DateRange{})
		require.NoError(t, err)

		require.Len(t, report.Imeis, 2, "every device ever seen with the number")
		assert.Equal(t, imeiA, report.Imeis[0].Imei, "first-encounter order preserved")
		assert.Equal(t, imeiB, report.Imeis[1].Imei)

		require.Len(t, report.Imeis[0].Numbers, 2)
		assert.Equal(t, "771234567", report.Imeis[0].Numbers[0].Number)
		assert.Equal(t, "789999999", report.Imeis[0].Numbers[1].Number)

		require.Len(t, report.Numbers, 2, "the other numbers sharing those devices")
		numbers := []string{report.Numbers[0].Number, report.Numbers[1].Number}
		assert.Contains(t, numbers, "789999999")
		assert.Contains(t, numbers, "760000000")
	})

	t.Run("Role Tallies", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "771234567", cdr.IdentifierNumber, cdr.DateRange{})
		require.NoError(t, err)

		own := report.Imeis[0].Numbers[0]
		assert.Equal(t, 1, own.CallerCount)
		assert.Equal(t, 0, own.CalleeCount)

		peer := report.Imeis[0].Numbers[1]
		assert.Equal(t, 0, peer.CallerCount)
		assert.Equal(t, 1, peer.CalleeCount)
	})

	t.Run("Case Metadata Attached", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "771234567", cdr.IdentifierNumber, cdr.DateRange{})
		require.NoError(t, err)

		require.NotEmpty(t, report.Imeis[0].Cases)
		info := report.Imeis[0].Cases[0]
		assert.Equal(t, "Operation Alpha", info.Name)
		assert.Equal(t, "analyst1", info.Owner)
		assert.Equal(t, "DIC", info.Division)
	})

	t.Run("By Imei Returns Both Views", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), imeiA, cdr.IdentifierIMEI, cdr.DateRange{})
		require.NoError(t, err)

		require.Len(t, report.Numbers, 2, "every number ever seen with the device")
		assert.Equal(t, "771234567", report.Numbers[0].Number)

		require.Len(t, report.Imeis, 1, "the other device sharing a number")
		assert.Equal(t, imeiB, report.Imeis[0].Imei)
	})

	t.Run("Date Range Filter", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "771234567", cdr.IdentifierNumber,
			cdr.DateRange{From: at(1), To: at(2)})
		require.NoError(t, err)
		assert.Len(t, report.Imeis, 1, "associations outside the window are ignored")
	})

	t.Run("Unknown Identifier Yields Empty Report", func(t *testing.T) {
		report, err := correlator.Detect(context.Background(), "700000000", cdr.IdentifierNumber, cdr.DateRange{})
		require.NoError(t, err)
		assert.Empty(t, report.Imeis)
		assert.Empty(t, report.Numbers)
	})

	t.Run("Missing Identifier Rejected", func(t *testing.T) {
		_, err := correlator.Detect(context.Background(), "", cdr.IdentifierNumber, cdr.DateRange{})
		assert.Error(t, err)
	})
}
