// Package metrics holds the Prometheus collectors for digest batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for EmailsTotal.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics groups the collectors. Construct one per registry; tests use a
// fresh prometheus.NewRegistry() so runs never collide.
type Metrics struct {
	EmailsTotal    *prometheus.CounterVec
	BatchesTotal   *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	TriggerDropped prometheus.Counter
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EmailsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_emails_total",
				Help: "Digest records processed, by outcome",
			},
			[]string{"outcome"}, // sent, failed, skipped
		),
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_batches_total",
				Help: "Digest batches run, by status",
			},
			[]string{"status"}, // ok, error
		),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "digest_batch_duration_seconds",
			Help:    "Wall time of one digest batch",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		TriggerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "digest_trigger_dropped_total",
			Help: "Asynchronous triggers dropped because the runner queue was full",
		}),
	}
}

// RecordOutcome increments the per-record counter. Safe on a nil receiver.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.EmailsTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch records one finished batch. Safe on a nil receiver.
func (m *Metrics) RecordBatch(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// RecordDropped counts a trigger the runner could not queue. Safe on a nil
// receiver.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.TriggerDropped.Inc()
}
