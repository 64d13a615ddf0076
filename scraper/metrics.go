package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a batch run.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RowsTotal       *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appchangelog_requests_total",
			Help: "Store page lookups by source (network or cache).",
		},
		[]string{"source"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appchangelog_request_duration_seconds",
			Help:    "HTTP latency for store page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appchangelog_rows_total",
			Help: "Input rows processed by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appchangelog_errors_total",
			Help: "Row failures by stage.",
		},
		[]string{"stage"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appchangelog_fetch_errors_total",
			Help: "Store page fetch failures by error class.",
		},
		[]string{"class"},
	)

	registry.MustRegister(requests, requestDuration, rows, errorsTotal, fetchErrors)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RowsTotal:       rows,
		ErrorsTotal:     errorsTotal,
		FetchErrors:     fetchErrors,
	}
}

// IncRequest increments the request counter for a source label.
func (m *Metrics) IncRequest(source string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(source).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRow increments the row counter for an outcome label.
func (m *Metrics) IncRow(outcome string) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a stage label.
func (m *Metrics) IncError(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

// IncFetchError increments the fetch failure counter for a class label.
func (m *Metrics) IncFetchError(class string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(class).Inc()
}
