package audit

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegisterer(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	require.NotNil(t, m)
	assert.NotNil(t, m.eventsTotal)
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	before := testutil.ToFloat64(m.eventsTotal.WithLabelValues("authorization", "success"))
	m.RecordEvent(EventTypeAuthorization, OutcomeSuccess)
	after := testutil.ToFloat64(m.eventsTotal.WithLabelValues("authorization", "success"))

	assert.Equal(t, before+1, after)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordEvent(EventTypeAuthentication, OutcomeFailure)
	})
}

func TestRecorder_LogRecordsMetrics(t *testing.T) {
	m := NewMetricsWithRegisterer("test", prometheus.NewRegistry())
	r := NewRecorder(nil, WithRecorderMetrics(m))

	r.Log(context.Background(), RateLimitEvent("10.0.0.1", "rate limit exceeded"))

	value := testutil.ToFloat64(m.eventsTotal.WithLabelValues("rate_limit", "denied"))
	assert.Equal(t, 1.0, value)
}
