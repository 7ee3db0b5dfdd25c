package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ItemsTotal      *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_total",
			Help: "Items handled by the crawler by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Completed crawl runs by final state.",
		},
		[]string{"state"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time of full crawl runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	registry.MustRegister(requests, requestDuration, items, retries, errorsTotal, runs, runDuration)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ItemsTotal:      items,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		RunsTotal:       runs,
		RunDuration:     runDuration,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems increments the items counter for an outcome (inserted, existing, failed).
func (m *Metrics) IncItems(outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
	m.RunDuration.Observe(d.Seconds())
}
