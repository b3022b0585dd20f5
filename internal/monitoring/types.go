package monitoring

import (
	"context"
	"time"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/fraud"
)

// TargetType discriminates what a monitoring target watches.
type TargetType string

const (
	TargetNumber TargetType = "number"
	TargetIMEI   TargetType = "imei"
)

// Target is one watched identifier. KnownPeers is the monotonic baseline of
// previously seen associations: it only ever grows. A target is owned
// exclusively by the user who created it.
type Target struct {
	ID             string     `json:"id"`
	Type           TargetType `json:"type"`
	Value          string     `json:"value"`
	KnownPeers     []string   `json:"knownPeers"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedByID    string     `json:"createdById"`
	CreatedByLogin string     `json:"createdByLogin"`
	LastAlertAt    *time.Time `json:"lastAlertAt,omitempty"`
}

// Alert records newly observed peers for a target. Immutable once created.
type Alert struct {
	ID          string     `json:"id"`
	TargetID    string     `json:"targetId"`
	TargetType  TargetType `json:"targetType"`
	TargetValue string     `json:"targetValue"`
	CreatedAt   time.Time  `json:"createdAt"`
	NewPeers    []string   `json:"newPeers"`
}

// Store persists per-user watch state. Implementations must write a user's
// targets and alerts atomically so a failed write never leaves a
// half-updated baseline.
type Store interface {
	Targets(ctx context.Context, login string) ([]*Target, error)
	Alerts(ctx context.Context, login string) ([]*Alert, error)
	SaveUserState(ctx context.Context, login string, targets []*Target, alerts []*Alert) error
	Logins(ctx context.Context) ([]string, error)
}

// Correlator is the slice of the global fraud correlator the engine needs.
type Correlator interface {
	Detect(ctx context.Context, identifier string, identifierType cdr.IdentifierType, dateRange cdr.DateRange) (*fraud.GlobalReport, error)
}

// AlertPublisher forwards freshly emitted alerts to an external channel.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, login string, alert *Alert) error
}
