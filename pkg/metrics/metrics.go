// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	StoreRequestsTotal   *prometheus.CounterVec
	StoreRequestDuration *prometheus.HistogramVec
	IndexOperationsTotal *prometheus.CounterVec
	CascadeRunsTotal     *prometheus.CounterVec
	DocumentsPurgedTotal prometheus.Counter
	PurgeFailuresTotal   *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
	DocumentsStoredTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. Passing nil
// registers with the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		StoreRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstore_requests_total",
				Help: "Document store calls by operation and HTTP status (0 for transport failures).",
			},
			[]string{"operation", "status"},
		),
		StoreRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docstore_request_duration_seconds",
				Help:    "Document store call latency in seconds.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_operations_total",
				Help: "Report index operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		CascadeRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_runs_total",
				Help: "Historic report cascades by result (success, partial, noop).",
			},
			[]string{"result"},
		),
		DocumentsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_purged_total",
				Help: "Documents removed from both the store and the index.",
			},
		),
		PurgeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purge_failures_total",
				Help: "Per-document purge failures by stage (lookup, token, store, index).",
			},
			[]string{"stage"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notification attempts by topic and result (published, skipped, failed).",
			},
			[]string{"topic", "result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		DocumentsStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_stored_total",
				Help: "Documents written to the store and registered in the index, by kind.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StoreRequestsTotal,
		m.StoreRequestDuration,
		m.IndexOperationsTotal,
		m.CascadeRunsTotal,
		m.DocumentsPurgedTotal,
		m.PurgeFailuresTotal,
		m.NotificationsTotal,
		m.CircuitBreakerState,
		m.DocumentsStoredTotal,
	)

	return m
}

// ObserveStoreCall records a document store round trip.
func (m *Metrics) ObserveStoreCall(operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StoreRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.StoreRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IndexOperation(operation string, ok bool) {
	if m == nil {
		return
	}
	m.IndexOperationsTotal.WithLabelValues(operation, result(ok)).Inc()
}

func (m *Metrics) CascadeRun(outcome string) {
	if m == nil {
		return
	}
	m.CascadeRunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DocumentPurged() {
	if m == nil {
		return
	}
	m.DocumentsPurgedTotal.Inc()
}

func (m *Metrics) PurgeFailed(stage string) {
	if m == nil {
		return
	}
	m.PurgeFailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) Notification(topic, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) DocumentStored(kind string) {
	if m == nil {
		return
	}
	m.DocumentsStoredTotal.WithLabelValues(kind).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
