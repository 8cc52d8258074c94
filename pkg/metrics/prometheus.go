package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsApplied *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	freshnessLag  prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_events_applied_total",
				Help: "Consumed transaction events by apply result",
			},
			[]string{"result"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_decisions_total",
				Help: "Issued decisions by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		freshnessLag: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riskpulse_feature_freshness_lag_seconds",
				Help:    "Lag from event time to feature store write",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
		),
	}
}

// RecordEventApplied counts one consumed event by result (applied,
// duplicate, invalid).
func (r *Recorder) RecordEventApplied(result string) {
	r.eventsApplied.WithLabelValues(result).Inc()
}

// RecordDecision counts one issued decision by outcome.
func (r *Recorder) RecordDecision(outcome string) {
	r.decisions.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordFreshnessLag records the event-time-to-store-write lag.
func (r *Recorder) RecordFreshnessLag(seconds float64) {
	r.freshnessLag.Observe(seconds)
}
