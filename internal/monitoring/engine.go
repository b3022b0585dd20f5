package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/config"
)

// DefaultAlertHistoryLimit caps the retained alert history per user.
const DefaultAlertHistoryLimit = 40

// Engine maintains per-user watch-lists and emits alerts when the global
// fraud correlation reveals a previously unseen peer. All watch state is
// loaded, diffed and persisted within the scope of one refresh call; the
// engine itself holds no watch-list data, only per-user write locks.
type Engine struct {
	store      Store
	correlator Correlator
	publisher  AlertPublisher
	cfg        config.MonitoringConfig
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a monitoring engine. publisher may be nil.
func NewEngine(store Store, correlator Correlator, publisher AlertPublisher, cfg config.MonitoringConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		correlator: correlator,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// userLock serializes read-modify-write cycles per user. Cross-user
// operations stay independent.
func (e *Engine) userLock(login string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[login]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[login] = lock
	}
	return lock
}

// AddTarget registers a new watch target for the user. The current peer set
// is seeded into KnownPeers so associations already visible at creation
// time do not produce an immediate alert.
func (e *Engine) AddTarget(ctx context.Context, login, userID string, targetType TargetType, value string) (*Target, error) {
	if login == "" || value == "" {
		return nil, fmt.Errorf("login and target value are required")
	}
	if targetType != TargetNumber && targetType != TargetIMEI {
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}

	lock := e.userLock(login)
	lock.Lock()
	defer lock.Unlock()

	targets, err := e.store.Targets(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == targetType && t.Value == value {
			return nil, fmt.Errorf("target already monitored: %s", value)
		}
	}

	peers, err := e.currentPeers(ctx, targetType, value)
	if err != nil {
		return nil, err
	}

	target := &Target{
		ID:             uuid.New().String(),
		Type:           targetType,
		Value:          value,
		KnownPeers:     peers,
		CreatedAt:      time.Now().UTC(),
		CreatedByID:    userID,
		CreatedByLogin: login,
	}

	alerts, err := e.store.Alerts(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	if err := e.store.SaveUserState(ctx, login, append(targets, target), alerts); err != nil {
		return nil, fmt.Errorf("failed to persist target: %w", err)
	}

	e.logger.Info("Monitoring target added",
		"login", login,
		"target_id", target.ID,
		"type", string(targetType),
		"known_peers", len(peers))

	return target, nil
}

// RemoveTarget deletes a target and every alert it produced.
func (e *Engine) RemoveTarget(ctx context.Context, login, targetID string) error {
	lock := e.userLock(login)
	lock.Lock()
	defer lock.Unlock()

	targets, err := e.store.Targets(ctx, login)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	kept := targets[:0:0]
	found := false
	for _, t := range targets {
		if t.ID == targetID {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return fmt.Errorf("target not found: %s", targetID)
	}

	alerts, err := e.store.Alerts(ctx, login)
	if err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}
	keptAlerts := alerts[:0:0]
	for _, a := range alerts {
		if a.TargetID == targetID {
			continue
		}
		keptAlerts = append(keptAlerts, a)
	}

	if err := e.store.SaveUserState(ctx, login, kept, keptAlerts); err != nil {
		return fmt.Errorf("failed to persist removal: %w", err)
	}

	e.logger.Info("Monitoring target removed", "login", login, "target_id", targetID)
	return nil
}

// Targets lists the user's watch targets.
func (e *Engine) Targets(ctx context.Context, login string) ([]*Target, error) {
	return e.store.Targets(ctx, login)
}

// Alerts lists the user's alert history, newest first.
func (e *Engine) Alerts(ctx context.Context, login string) ([]*Alert, error) {
	return e.store.Alerts(ctx, login)
}

// RefreshUser re-correlates every active target of one user and emits one
// alert per target that gained previously unseen peers. The whole cycle is
// serialized per user; state is persisted atomically at the end, so a
// failed write leaves the previous baseline intact.
func (e *Engine) RefreshUser(ctx context.Context, login string) ([]*Alert, error) {
	lock := e.userLock(login)
	lock.Lock()
	defer lock.Unlock()

	targets, err := e.store.Targets(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	alerts, err := e.store.Alerts(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	now := time.Now().UTC()
	var emitted []*Alert
	for _, target := range targets {
		peers, err := e.currentPeers(ctx, target.Type, target.Value)
		if err != nil {
			// One unreachable correlation must not poison the other
			// targets of the refresh.
			e.logger.Warn("Peer correlation failed during refresh",
				"login", login, "target_id", target.ID, "error", err)
			continue
		}

		newPeers := diffPeers(peers, target.KnownPeers)
		if len(newPeers) == 0 {
			continue
		}

		alert := &Alert{
			ID:          uuid.New().String(),
			TargetID:    target.ID,
			TargetType:  target.Type,
			TargetValue: target.Value,
			CreatedAt:   now,
			NewPeers:    newPeers,
		}
		emitted = append(emitted, alert)

		target.KnownPeers = unionPeers(target.KnownPeers, peers)
		lastAlert := now
		target.LastAlertAt = &lastAlert
	}

	if len(emitted) == 0 {
		return nil, nil
	}

	// Newest first, capped.
	alerts = append(emitted, alerts...)
	limit := e.historyLimit()
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}

	if err := e.store.SaveUserState(ctx, login, targets, alerts); err != nil {
		return nil, fmt.Errorf("failed to persist refresh: %w", err)
	}

	if e.publisher != nil {
		for _, alert := range emitted {
			if err := e.publisher.PublishAlert(ctx, login, alert); err != nil {
				e.logger.Warn("Failed to publish alert", "alert_id", alert.ID, "error", err)
			}
		}
	}

	e.logger.Info("Monitoring refresh completed",
		"login", login,
		"targets", len(targets),
		"alerts_emitted", len(emitted))

	return emitted, nil
}

// RefreshAll refreshes every user's watch-list.
func (e *Engine) RefreshAll(ctx context.Context) error {
	logins, err := e.store.Logins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list monitored users: %w", err)
	}
	for _, login := range logins {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.RefreshUser(ctx, login); err != nil {
			e.logger.Error("User refresh failed", "login", login, "error", err)
		}
	}
	return nil
}

// Run drives periodic refreshes until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Monitoring engine started", "refresh_interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Monitoring engine stopped")
			return
		case <-ticker.C:
			if err := e.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("Monitoring refresh cycle failed", "error", err)
			}
		}
	}
}

// currentPeers runs the global correlation for a target: numbers watch
// devices, devices watch numbers.
func (e *Engine) currentPeers(ctx context.Context, targetType TargetType, value string) ([]string, error) {
	identifierType := cdr.IdentifierNumber
	if targetType == TargetIMEI {
		identifierType = cdr.IdentifierIMEI
	}

	report, err := e.correlator.Detect(ctx, value, identifierType, cdr.DateRange{})
	if err != nil {
		return nil, fmt.Errorf("global correlation failed: %w", err)
	}

	var peers []string
	if targetType == TargetNumber {
		for _, entry := range report.Imeis {
			peers = appendPeer(peers, entry.Imei)
		}
	} else {
		for _, entry := range report.Numbers {
			peers = appendPeer(peers, entry.Number)
		}
	}
	return peers, nil
}

func (e *Engine) historyLimit() int {
	if e.cfg.AlertHistoryLimit > 0 {
		return e.cfg.AlertHistoryLimit
	}
	return DefaultAlertHistoryLimit
}

func diffPeers(peers, known []string) []string {
	knownSet := make(map[string]struct{}, len(known))
	for _, p := range known {
		knownSet[p] = struct{}{}
	}
	var fresh []string
	for _, p := range peers {
		if _, ok := knownSet[p]; !ok {
			fresh = appendPeer(fresh, p)
		}
	}
	return fresh
}

func unionPeers(known, peers []string) []string {
	out := append([]string(nil), known...)
	for _, p := range peers {
		out = appendPeer(out, p)
	}
	return out
}

func appendPeer(peers []string, peer string) []string {
	if peer == "" {
		return peers
	}
	for _, p := range peers {
		if p == peer {
			return peers
		}
	}
	return append(peers, peer)
}
