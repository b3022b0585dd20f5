package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects and exports metrics for the CDR engine
type MetricsCollector struct {
	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Search metrics
	searchesTotal     *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
	recordsFetched    prometheus.Counter
	recordsDropped    prometheus.Counter
	fetchesInFlight   prometheus.Gauge
	fetchTimeoutsTotal prometheus.Counter

	// Correlation metrics
	correlationsTotal   *prometheus.CounterVec
	correlationDuration *prometheus.HistogramVec

	// Monitoring metrics
	refreshesTotal  *prometheus.CounterVec
	alertsEmitted   prometheus.Counter
	targetsWatched  prometheus.Gauge

	// Diagram metrics
	diagramsTotal *prometheus.CounterVec
	diagramSize   prometheus.Histogram
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_intel_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdr_intel_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		searchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_intel_searches_total",
				Help: "Total number of CDR searches",
			},
			[]string{"status"},
		),
		searchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdr_intel_search_duration_seconds",
				Help:    "CDR search duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		recordsFetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cdr_intel_records_fetched_total",
				Help: "Total raw CDR records fetched from the source",
			},
		),
		recordsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cdr_intel_records_dropped_total",
				Help: "Total records dropped from spatial aggregates during normalization",
			},
		),
		fetchesInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdr_intel_fetches_in_flight",
				Help: "Number of CDR source fetches currently running",
			},
		),
		fetchTimeoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cdr_intel_fetch_timeouts_total",
				Help: "Total per-identifier fetches abandoned on timeout",
			},
		),

		correlationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_intel_correlations_total",
				Help: "Total fraud correlations run",
			},
			[]string{"scope", "status"},
		),
		correlationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdr_intel_correlation_duration_seconds",
				Help:    "Fraud correlation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),

		refreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_intel_monitoring_refreshes_total",
				Help: "Total monitoring refresh cycles",
			},
			[]string{"status"},
		),
		alertsEmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cdr_intel_monitoring_alerts_emitted_total",
				Help: "Total monitoring alerts emitted",
			},
		),
		targetsWatched: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdr_intel_monitoring_targets",
				Help: "Number of watch targets currently registered",
			},
		),

		diagramsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdr_intel_link_diagrams_total",
				Help: "Total link diagram builds",
			},
			[]string{"status"},
		),
		diagramSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cdr_intel_link_diagram_links",
				Help:    "Number of links per built diagram",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
	}
}

// RecordRequest records an HTTP request
func (m *MetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSearch records a completed CDR search
func (m *MetricsCollector) RecordSearch(status string, fetched, dropped int, duration time.Duration) {
	m.searchesTotal.WithLabelValues(status).Inc()
	m.searchDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.recordsFetched.Add(float64(fetched))
	m.recordsDropped.Add(float64(dropped))
}

// RecordFetchStarted tracks an in-flight source fetch
func (m *MetricsCollector) RecordFetchStarted() { m.fetchesInFlight.Inc() }

// RecordFetchFinished ends an in-flight source fetch
func (m *MetricsCollector) RecordFetchFinished() { m.fetchesInFlight.Dec() }

// RecordFetchTimeout records an abandoned per-identifier fetch
func (m *MetricsCollector) RecordFetchTimeout() { m.fetchTimeoutsTotal.Inc() }

// RecordCorrelation records a fraud correlation run
func (m *MetricsCollector) RecordCorrelation(scope, status string, duration time.Duration) {
	m.correlationsTotal.WithLabelValues(scope, status).Inc()
	m.correlationDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordRefresh records a monitoring refresh cycle
func (m *MetricsCollector) RecordRefresh(status string, alerts int) {
	m.refreshesTotal.WithLabelValues(status).Inc()
	m.alertsEmitted.Add(float64(alerts))
}

// SetTargetsWatched updates the watch target gauge
func (m *MetricsCollector) SetTargetsWatched(count int) {
	m.targetsWatched.Set(float64(count))
}

// RecordDiagram records a link diagram build
func (m *MetricsCollector) RecordDiagram(status string, links int) {
	m.diagramsTotal.WithLabelValues(status).Inc()
	if links > 0 {
		m.diagramSize.Observe(float64(links))
	}
}
