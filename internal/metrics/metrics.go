package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raidreview"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Logging metrics
	LogLinesTotal        *prometheus.CounterVec
	LogAppendErrorsTotal prometheus.Counter

	// Session file metrics
	SessionsTotal        prometheus.Counter
	LogFilesEvictedTotal prometheus.Counter

	// Server metrics
	ActiveClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		LogLinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_lines_total",
				Help:      "Total number of log lines emitted by level and sink",
			},
			[]string{"level", "sink"},
		),
		LogAppendErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_append_errors_total",
				Help:      "Total number of failed session file appends",
			},
		),

		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of log sessions started",
			},
		),
		LogFilesEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_files_evicted_total",
				Help:      "Total number of session log files removed by retention",
			},
		),

		ActiveClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_clients",
				Help:      "Number of currently connected clients",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.LogLinesTotal)
	m.registry.MustRegister(m.LogAppendErrorsTotal)
	m.registry.MustRegister(m.SessionsTotal)
	m.registry.MustRegister(m.LogFilesEvictedTotal)
	m.registry.MustRegister(m.ActiveClients)
}

// LineEmitted counts one line written to sink
func (m *Metrics) LineEmitted(level, sink string) {
	m.LogLinesTotal.WithLabelValues(level, sink).Inc()
}

// SessionStarted counts a new session file
func (m *Metrics) SessionStarted() {
	m.SessionsTotal.Inc()
}

// FileEvicted counts a retention eviction
func (m *Metrics) FileEvicted() {
	m.LogFilesEvictedTotal.Inc()
}

// AppendFailed counts a failed file append
func (m *Metrics) AppendFailed() {
	m.LogAppendErrorsTotal.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
