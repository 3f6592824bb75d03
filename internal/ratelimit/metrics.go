package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultError = "error"

// Metrics contains Prometheus collectors for admission checks.
// A nil *Metrics records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	checkDuration prometheus.Histogram
	lockWait      prometheus.Histogram
}

// NewMetrics registers the admission collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_admission_decisions_total",
				Help: "Total number of admission checks by result",
			},
			[]string{"result"},
		),

		checkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_admission_check_duration_seconds",
				Help:    "Duration of admission checks in seconds, lock wait included",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			},
		),

		lockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_admission_lock_wait_seconds",
				Help:    "Time spent waiting for counter locks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 18), // 10µs to ~1.3s
			},
		),
	}
}

// RecordDecision records the outcome and duration of one admission check.
func (m *Metrics) RecordDecision(outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.decisions.WithLabelValues(string(outcome)).Inc()
	m.checkDuration.Observe(elapsed.Seconds())
}

// RecordError records an admission check that failed.
func (m *Metrics) RecordError(elapsed time.Duration) {
	if m == nil {
		return
	}

	m.decisions.WithLabelValues(resultError).Inc()
	m.checkDuration.Observe(elapsed.Seconds())
}

// RecordLockWait records how long a check waited for its counter locks.
func (m *Metrics) RecordLockWait(elapsed time.Duration) {
	if m == nil {
		return
	}

	m.lockWait.Observe(elapsed.Seconds())
}
