package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Validation metrics
	ValidationsTotal *prometheus.CounterVec
	ConflictsTotal   *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileOutcomes *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec

	// Node metrics
	NodesRegistered prometheus.Gauge
	NodesRunning    prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodemanager_requests_total",
				Help: "Total number of management requests processed",
			},
			[]string{"operation", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nodemanager_request_duration_seconds",
				Help:    "Duration of management request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodemanager_request_errors_total",
				Help: "Total number of management request errors",
			},
			[]string{"operation", "error_type"},
		),

		ValidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodemanager_validations_total",
				Help: "Total number of configuration validations",
			},
			[]string{"mode", "valid"},
		),

		ConflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodemanager_conflicts_total",
				Help: "Total number of configuration conflicts detected",
			},
			[]string{"type"},
		),

		ReconcileOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodemanager_reconcile_outcomes_total",
				Help: "Total number of reconciliation loop outcomes",
			},
			[]string{"transition", "outcome"},
		),

		ReconcileDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nodemanager_reconcile_duration_seconds",
				Help:    "Duration of reconciliation loops",
				Buckets: []float64{1, 3, 6, 12, 24, 48, 96},
			},
			[]string{"transition", "outcome"},
		),

		NodesRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nodemanager_nodes_registered",
				Help: "Number of registered nodes",
			},
		),

		NodesRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nodemanager_nodes_running",
				Help: "Number of nodes observed running",
			},
		),
	}
}

// RecordRequest records a request metric
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error metric
func (m *Metrics) RecordError(operation, errorType string) {
	m.RequestErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordValidation records a validation and its detected conflicts
func (m *Metrics) RecordValidation(mode string, valid bool, conflictTypes []string) {
	v := "false"
	if valid {
		v = "true"
	}
	m.ValidationsTotal.WithLabelValues(mode, v).Inc()
	for _, t := range conflictTypes {
		m.ConflictsTotal.WithLabelValues(t).Inc()
	}
}

// RecordReconcile records a reconciliation loop outcome
func (m *Metrics) RecordReconcile(transition, outcome string, duration float64) {
	m.ReconcileOutcomes.WithLabelValues(transition, outcome).Inc()
	m.ReconcileDuration.WithLabelValues(transition, outcome).Observe(duration)
}

// UpdateNodeCounts updates the registered and running node gauges
func (m *Metrics) UpdateNodeCounts(registered, running int) {
	m.NodesRegistered.Set(float64(registered))
	m.NodesRunning.Set(float64(running))
}

// Middleware records per-request metrics, labelled by the matched route
// template so path parameters don't explode the label space
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			operation := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					operation = tpl
				}
			}
			m.RecordRequest(operation, strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
