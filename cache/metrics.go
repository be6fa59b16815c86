package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains cache metrics.
type Metrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    *prometheus.CounterVec
	evictionsTotal prometheus.Counter
	sizeGauge      prometheus.Gauge
}

// NewMetrics creates new cache metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new cache metrics registered with the
// provided registerer, allowing callers to expose them on a custom
// registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "authcore"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache_namespace"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache_namespace"},
		),
		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of capacity evictions",
			},
		),
		sizeGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of cache entries",
			},
		),
	}

	// Duplicate registrations are ignored; descriptors are identical.
	_ = registerer.Register(m.hitsTotal)
	_ = registerer.Register(m.missesTotal)
	_ = registerer.Register(m.evictionsTotal)
	_ = registerer.Register(m.sizeGauge)

	return m
}

// RecordHit records a cache hit for a namespace.
func (m *Metrics) RecordHit(namespace string) {
	if m == nil || m.hitsTotal == nil {
		return
	}
	m.hitsTotal.WithLabelValues(namespace).Inc()
}

// RecordMiss records a cache miss for a namespace.
func (m *Metrics) RecordMiss(namespace string) {
	if m == nil || m.missesTotal == nil {
		return
	}
	m.missesTotal.WithLabelValues(namespace).Inc()
}

// RecordEvictions records capacity evictions.
func (m *Metrics) RecordEvictions(count int) {
	if m == nil || m.evictionsTotal == nil {
		return
	}
	m.evictionsTotal.Add(float64(count))
}

// SetSize updates the entry count gauge.
func (m *Metrics) SetSize(size int) {
	if m == nil || m.sizeGauge == nil {
		return
	}
	m.sizeGauge.Set(float64(size))
}
