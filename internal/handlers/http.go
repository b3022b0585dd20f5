package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/fraud"
	"github.com/telesight/cdr-intel/internal/graph"
	"github.com/telesight/cdr-intel/internal/metrics"
	"github.com/telesight/cdr-intel/internal/monitoring"
)

// HTTPHandler handles HTTP requests for the CDR engine
type HTTPHandler struct {
	config           *config.Config
	logger           *slog.Logger
	searcher         *cdr.Searcher
	caseCorrelator   *fraud.CaseCorrelator
	globalCorrelator *fraud.GlobalCorrelator
	monitor          *monitoring.Engine
	diagramBuilder   *graph.Builder
	collector        *metrics.MetricsCollector
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	cfg *config.Config,
	logger *slog.Logger,
	searcher *cdr.Searcher,
	caseCorrelator *fraud.CaseCorrelator,
	globalCorrelator *fraud.GlobalCorrelator,
	monitor *monitoring.Engine,
	diagramBuilder *graph.Builder,
	collector *metrics.MetricsCollector,
) *HTTPHandler {
	return &HTTPHandler{
		config:           cfg,
		logger:           logger,
		searcher:         searcher,
		caseCorrelator:   caseCorrelator,
		globalCorrelator: globalCorrelator,
		monitor:          monitor,
		diagramBuilder:   diagramBuilder,
		collector:        collector,
	}
}

// RegisterRoutes registers HTTP routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Health and status endpoints
	router.HandleFunc("/health", h.handleHealth).Methods("GET")
	router.HandleFunc("/status", h.handleStatus).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Search endpoints
	api.HandleFunc("/search", h.handleSearch).Methods("POST")

	// Fraud correlation endpoints
	fraudRouter := api.PathPrefix("/fraud").Subrouter()
	fraudRouter.HandleFunc("/case/{caseId}", h.handleCaseFraud).Methods("POST")
	fraudRouter.HandleFunc("/global", h.handleGlobalFraud).Methods("POST")

	// Monitoring endpoints
	monitoringRouter := api.PathPrefix("/monitoring").Subrouter()
	monitoringRouter.HandleFunc("/targets", h.handleCreateTarget).Methods("POST")
	monitoringRouter.HandleFunc("/targets", h.handleListTargets).Methods("GET")
	monitoringRouter.HandleFunc("/targets/{id}", h.handleDeleteTarget).Methods("DELETE")
	monitoringRouter.HandleFunc("/alerts", h.handleListAlerts).Methods("GET")
	monitoringRouter.HandleFunc("/refresh", h.handleRefresh).Methods("POST")

	// Link diagram endpoints
	api.HandleFunc("/link-diagram", h.handleLinkDiagram).Methods("POST")
}

// Health and Status Handlers

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "cdr-intel",
	}
	h.writeJSON(w, http.StatusOK, health)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"service":     "cdr-intel",
		"status":      "running",
		"environment": h.config.Environment,
		"timestamp":   time.Now().UTC(),
	}
	h.writeJSON(w, http.StatusOK, status)
}

// Search Handlers

func (h *HTTPHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req cdr.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, cdr.ErrNoResults):
			h.collector.RecordSearch("no_results", 0, 0, time.Since(start))
			h.writeError(w, http.StatusNotFound, "No results")
		case errors.Is(err, cdr.ErrUpstream):
			h.collector.RecordSearch("upstream_error", 0, 0, time.Since(start))
			h.writeError(w, http.StatusBadGateway, "CDR source unavailable")
		default:
			h.collector.RecordSearch("error", 0, 0, time.Since(start))
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	h.collector.RecordSearch("ok", result.Fetched, result.Dropped, time.Since(start))
	h.writeJSON(w, http.StatusOK, result)
}

// Fraud Handlers

func (h *HTTPHandler) handleCaseFraud(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	caseID := mux.Vars(r)["caseId"]

	var req struct {
		Numbers   []string      `json:"numbers"`
		DateRange cdr.DateRange `json:"dateRange"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Numbers) == 0 {
		h.writeError(w, http.StatusBadRequest, "At least one number is required")
		return
	}

	report, err := h.caseCorrelator.Detect(r.Context(), caseID, req.Numbers, req.DateRange)
	if err != nil {
		h.collector.RecordCorrelation("case", "error", time.Since(start))
		h.writeError(w, http.StatusInternalServerError, "Failed to correlate case")
		return
	}

	h.collector.RecordCorrelation("case", "ok", time.Since(start))
	h.writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) handleGlobalFraud(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req struct {
		Identifier     string             `json:"identifier"`
		IdentifierType cdr.IdentifierType `json:"identifierType"`
		DateRange      cdr.DateRange      `json:"dateRange"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		h.writeError(w, http.StatusBadRequest, "Identifier is required")
		return
	}
	if req.IdentifierType == "" {
		req.IdentifierType = cdr.IdentifierNumber
	}

	report, err := h.globalCorrelator.Detect(r.Context(), req.Identifier, req.IdentifierType, req.DateRange)
	if err != nil {
		h.collector.RecordCorrelation("global", "error", time.Since(start))
		h.writeError(w, http.StatusInternalServerError, "Failed to correlate identifier")
		return
	}

	h.collector.RecordCorrelation("global", "ok", time.Since(start))
	h.writeJSON(w, http.StatusOK, report)
}

// Monitoring Handlers

func (h *HTTPHandler) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	login, userID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req struct {
		Type  monitoring.TargetType `json:"type"`
		Value string                `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Value == "" {
		h.writeError(w, http.StatusBadRequest, "Target value is required")
		return
	}
	if req.Type == "" {
		req.Type = monitoring.TargetNumber
	}

	target, err := h.monitor.AddTarget(r.Context(), login, userID, req.Type, req.Value)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, target)
}

func (h *HTTPHandler) handleListTargets(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	targets, err := h.monitor.Targets(r.Context(), login)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list targets")
		return
	}
	h.collector.SetTargetsWatched(len(targets))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": targets,
		"count":   len(targets),
	})
}

func (h *HTTPHandler) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.monitor.RemoveTarget(r.Context(), login, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	alerts, err := h.monitor.Alerts(r.Context(), login)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n >= 0 && n < len(alerts) {
			alerts = alerts[:n]
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *HTTPHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	alerts, err := h.monitor.RefreshUser(r.Context(), login)
	if err != nil {
		h.collector.RecordRefresh("error", 0)
		h.writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	h.collector.RecordRefresh("ok", len(alerts))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Link Diagram Handlers

func (h *HTTPHandler) handleLinkDiagram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RootNumbers []string      `json:"rootNumbers"`
		DateRange   cdr.DateRange `json:"dateRange"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	diagram, err := h.diagramBuilder.Build(r.Context(), req.RootNumbers, req.DateRange)
	if err != nil {
		var validation *graph.ValidationError
		switch {
		case errors.As(err, &validation):
			h.collector.RecordDiagram("rejected", 0)
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":    "Numbers outside the allowed prefixes",
				"rejected": validation.Rejected,
			})
		case errors.Is(err, graph.ErrNoLinks):
			h.collector.RecordDiagram("no_links", 0)
			h.writeError(w, http.StatusNotFound, "No links found")
		case errors.Is(err, cdr.ErrUpstream):
			h.collector.RecordDiagram("upstream_error", 0)
			h.writeError(w, http.StatusBadGateway, "CDR source unavailable")
		default:
			h.collector.RecordDiagram("error", 0)
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	h.collector.RecordDiagram("ok", len(diagram.Links))
	h.writeJSON(w, http.StatusOK, diagram)
}

// identity extracts the authenticated user from the gateway headers. The
// engine trusts the gateway; requests without a login are rejected.
func (h *HTTPHandler) identity(w http.ResponseWriter, r *http.Request) (login, userID string, ok bool) {
	login = r.Header.Get("X-User-Login")
	userID = r.Header.Get("X-User-Id")
	if login == "" {
		h.writeError(w, http.StatusUnauthorized, "User not authenticated")
		return "", "", false
	}
	return login, userID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
