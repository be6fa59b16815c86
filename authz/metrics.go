package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains authorization pipeline metrics.
type Metrics struct {
	verdictsTotal   *prometheus.CounterVec
	decisionSeconds prometheus.Histogram
}

// NewMetrics creates new authorization metrics registered with the
// default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new authorization metrics registered
// with the provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "authcore"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "verdicts_total",
				Help:      "Total number of authorization verdicts by outcome",
			},
			[]string{"outcome"},
		),
		decisionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "decision_duration_seconds",
				Help:      "Authorization decision latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	// Duplicate registrations are ignored; descriptors are identical.
	_ = registerer.Register(m.verdictsTotal)
	_ = registerer.Register(m.decisionSeconds)

	// Pre-populate outcome series so dashboards see zeros.
	for _, outcome := range []string{"authorized", "denied", "rate_limited"} {
		m.verdictsTotal.WithLabelValues(outcome).Add(0)
	}

	return m
}

// RecordVerdict records one authorization verdict and its latency.
func (m *Metrics) RecordVerdict(outcome string, elapsed time.Duration) {
	if m == nil || m.verdictsTotal == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(outcome).Inc()
	m.decisionSeconds.Observe(elapsed.Seconds())
}
