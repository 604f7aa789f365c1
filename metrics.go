package hvers

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Calculation outcomes recorded by Metrics
const (
	OutcomeSuccess     = "success"
	OutcomeNoReference = "no_reference"
	OutcomeCancelled   = "cancelled"
	OutcomeError       = "error"
)

// Metrics records calculation outcomes on a private Prometheus registry so a
// CI job can hand them to a node exporter textfile collector. A nil *Metrics
// records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	calculations   *prometheus.CounterVec
	commitsVisited prometheus.Histogram
	height         prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hvers_calculations_total",
				Help: "Version calculations by outcome",
			},
			[]string{"outcome"},
		),
		commitsVisited: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hvers_commits_visited",
				Help:    "Commits read while searching for a reference tag",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		height: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hvers_height",
				Help: "Height of the last successful calculation",
			},
		),
	}
	m.registry.MustRegister(m.calculations, m.commitsVisited, m.height)
	return m
}

// Registry exposes the underlying registry for custom exporters
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeSuccess(height, visited int) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(OutcomeSuccess).Inc()
	m.commitsVisited.Observe(float64(visited))
	m.height.Set(float64(height))
}

func (m *Metrics) observeFailure(err error) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(outcomeFor(err)).Inc()
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrNoReachableReference):
		return OutcomeNoReference
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}
