// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rewired-gh/motorguard/internal/features"
)

// Metrics holds all Prometheus metrics for the application.
// All Record methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	ReadingsIngested prometheus.Counter
	LastTemperature  prometheus.Gauge

	// Alert metrics
	AlertsRaised *prometheus.CounterVec

	// Prediction metrics
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	LastProbability    prometheus.Gauge

	// Scheduler metrics
	RiskChecksTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "motorguard"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ReadingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "readings_ingested_total",
			Help:      "Total number of temperature readings stored",
		}),
		LastTemperature: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_temperature_celsius",
			Help:      "Most recently ingested motor temperature",
		}),

		AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Total number of alerts raised by kind",
		}, []string{"kind"}),

		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "runs_total",
			Help:      "Total number of predictions by outcome",
		}, []string{"outcome"}),
		PredictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "duration_seconds",
			Help:      "Prediction latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LastProbability: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "last_probability",
			Help:      "Most recent failure probability",
		}),

		RiskChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "risk_checks_total",
			Help:      "Total number of periodic risk checks by status",
		}, []string{"status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReading records one stored reading.
func (m *Metrics) RecordReading(temperature float64) {
	if m == nil {
		return
	}
	m.ReadingsIngested.Inc()
	m.LastTemperature.Set(temperature)
}

// RecordAlert records a raised alert.
func (m *Metrics) RecordAlert(kind string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(kind).Inc()
}

// RecordPrediction records a prediction outcome and its latency.
func (m *Metrics) RecordPrediction(probability float64, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PredictionDuration.Observe(elapsed.Seconds())
	outcome := PredictionOutcome(err)
	m.PredictionsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		m.LastProbability.Set(probability)
	}
}

// RecordRiskCheck records a periodic risk check status.
func (m *Metrics) RecordRiskCheck(status string) {
	if m == nil {
		return
	}
	m.RiskChecksTotal.WithLabelValues(status).Inc()
}

// PredictionOutcome maps a prediction error to its metric label.
func PredictionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, features.ErrInput):
		return "input_error"
	case errors.Is(err, features.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, features.ErrSchema):
		return "schema_error"
	default:
		return "error"
	}
}
