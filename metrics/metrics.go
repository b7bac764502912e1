// Package metrics exposes Prometheus instruments for the labor ledger.
//
// All methods are safe on a nil *Metrics so components can run without
// a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labor"

// Metrics groups the engine's instruments.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	records    *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "operations_total",
			Help:      "Time entry mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "duration_seconds",
			Help:      "Time entry mutation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "retries_total",
			Help:      "Automatic retries by operation and reason.",
		}, []string{"op", "reason"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "records_total",
			Help:      "Expense records appended by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.retries, m.records)
	}
	return m
}

// ObserveOperation records one finished reconciler operation.
func (m *Metrics) ObserveOperation(op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) ObserveRetry(op, reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) ObserveRecord(expenseType string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(expenseType).Inc()
}
