package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported at /metrics. A nil
// *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	jobEvents       *prometheus.CounterVec
	viewSessions    *prometheus.GaugeVec
	importedJobs    prometheus.Counter
}

// NewMetrics registers the service collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtracker_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobtracker_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtracker_http_errors_total",
			Help: "Error responses by route, method and error code",
		}, []string{"route", "method", "code"}),
		jobEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtracker_job_events_total",
			Help: "Job change events observed on the feed by type",
		}, []string{"type"}),
		viewSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobtracker_view_sessions",
			Help: "Open live view sessions by stream",
		}, []string{"stream"}),
		importedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobtracker_imported_jobs_total",
			Help: "Jobs inserted through bulk import",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordJobEvent counts a change event by type.
func (m *Metrics) RecordJobEvent(eventType string) {
	if m == nil {
		return
	}
	m.jobEvents.WithLabelValues(eventType).Inc()
}

// RecordImport counts jobs inserted by a bulk import.
func (m *Metrics) RecordImport(inserted int) {
	if m == nil {
		return
	}
	m.importedJobs.Add(float64(inserted))
}

// SessionOpened tracks a live view session; the returned func closes it.
func (m *Metrics) SessionOpened(stream string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.viewSessions.WithLabelValues(stream)
	gauge.Inc()
	return gauge.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
