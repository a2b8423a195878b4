// Package metrics holds the prometheus collectors of the certificate pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cheti"

type Metrics struct {
	reconciled    *prometheus.CounterVec
	verifications *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificates_reconciled_total",
				Help:      "batch items reconciled, by outcome",
			},
			[]string{"outcome"},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificate_verifications_total",
				Help:      "verification link checks, by result",
			},
			[]string{"result"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "certificate_batch_duration_seconds",
				Help:      "time spent reconciling a batch",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
}

func (m *Metrics) Reconciled(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.reconciled.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Verified(result string) {
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}
