package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegisterer(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	require.NotNil(t, m)
	assert.NotNil(t, m.hitsTotal)
	assert.NotNil(t, m.missesTotal)
	assert.NotNil(t, m.evictionsTotal)
	assert.NotNil(t, m.sizeGauge)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHit("auth")
		m.RecordMiss("auth")
		m.RecordEvictions(1)
		m.SetSize(10)
	})
}

func TestMemoryCache_RecordsMetrics(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())
	c := NewMemoryCache(nil, WithMemoryCacheMetrics(m))
	defer c.Close()

	ctx := context.Background()

	c.Set(ctx, "auth", "k", "v", time.Minute)
	c.Get(ctx, "auth", "k")
	c.Get(ctx, "auth", "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hitsTotal.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.missesTotal.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sizeGauge))
}
