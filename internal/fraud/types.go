package fraud

import (
	"context"
	"time"

	"github.com/telesight/cdr-intel/internal/cdr"
)

// Status classifies a number observed under an IMEI within a case.
type Status string

const (
	// StatusNew marks a number observed under an IMEI that is not the
	// expected number for that device in the case.
	StatusNew Status = "nouveau"
	// StatusExpected marks the baseline device/number association.
	StatusExpected Status = "attendu"
)

// Role describes how a number appeared relative to an IMEI's events.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
	RoleTarget Role = "target"
)

// Association is one observed (IMEI, number) co-occurrence taken from the
// underlying CDR archive. Associations arrive in query-result order, which
// the correlators preserve in their output.
type Association struct {
	CaseID     string    `json:"caseId"`
	Imei       string    `json:"imei"`
	Number     string    `json:"number"`
	Role       Role      `json:"role"`
	ObservedAt time.Time `json:"observedAt"`
}

// NumberEntry is the per-number summary under one IMEI of one case.
type NumberEntry struct {
	Number      string    `json:"number"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
	Occurrences int       `json:"occurrences"`
	Roles       []Role    `json:"roles"`
	Status      Status    `json:"status"`
}

// ImeiEntry groups the numbers observed under one IMEI, in the order they
// were first encountered.
type ImeiEntry struct {
	Imei    string         `json:"imei"`
	Numbers []*NumberEntry `json:"numbers"`
}

// CaseReport is the case-scoped fraud view.
type CaseReport struct {
	CaseID string       `json:"caseId"`
	Imeis  []*ImeiEntry `json:"imeis"`
}

// CaseInfo identifies a case an association was observed in.
type CaseInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Division string `json:"division"`
}

// GlobalNumberSummary is one number sharing a device, with role tallies.
type GlobalNumberSummary struct {
	Number      string     `json:"number"`
	Cases       []CaseInfo `json:"cases"`
	CallerCount int        `json:"callerCount"`
	CalleeCount int        `json:"calleeCount"`
}

// GlobalImeiSummary is one device sharing a number, with role tallies.
type GlobalImeiSummary struct {
	Imei        string     `json:"imei"`
	Cases       []CaseInfo `json:"cases"`
	CallerCount int        `json:"callerCount"`
	CalleeCount int        `json:"calleeCount"`
}

// GlobalImeiEntry is the device-sharing view: one IMEI and every number
// observed under it across all cases.
type GlobalImeiEntry struct {
	Imei    string                 `json:"imei"`
	Cases   []CaseInfo             `json:"cases"`
	Numbers []*GlobalNumberSummary `json:"numbers"`
}

// GlobalNumberEntry is the SIM-swap view: one number and every device it
// was observed with across all cases.
type GlobalNumberEntry struct {
	Number string               `json:"number"`
	Cases  []CaseInfo           `json:"cases"`
	Imeis  []*GlobalImeiSummary `json:"imeis"`
}

// GlobalReport carries both complementary cross-case views; a single call
// supports both SIM-swap and device-sharing investigations.
type GlobalReport struct {
	Identifier     string               `json:"identifier"`
	IdentifierType cdr.IdentifierType   `json:"identifierType"`
	Imeis          []*GlobalImeiEntry   `json:"imeis"`
	Numbers        []*GlobalNumberEntry `json:"numbers"`
}

// Store provides IMEI/number association history: case-scoped for the case
// correlator, cross-case for the global correlator.
type Store interface {
	// CaseAssociations returns every association of a case in query-result
	// order, unrestricted by date so baselines cover the case's history.
	CaseAssociations(ctx context.Context, caseID string) ([]Association, error)

	// AssociationsByNumber returns all cross-case associations of a number.
	AssociationsByNumber(ctx context.Context, number string) ([]Association, error)

	// AssociationsByImei returns all cross-case associations of a device.
	AssociationsByImei(ctx context.Context, imei string) ([]Association, error)

	// AssociationsByImeis batches AssociationsByImei over several devices.
	AssociationsByImeis(ctx context.Context, imeis []string) ([]Association, error)

	// AssociationsByNumbers batches AssociationsByNumber over several numbers.
	AssociationsByNumbers(ctx context.Context, numbers []string) ([]Association, error)

	// Cases resolves case metadata for the given ids.
	Cases(ctx context.Context, caseIDs []string) (map[string]CaseInfo, error)
}
