package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("test", reg, zap.NewNop())
}

func TestRecordRouteMatchIncrementsCounter(t *testing.T) {
	c := newTestCollector(t)
	c.RecordRouteMatch("example.com")
	c.RecordRouteMatch("example.com")

	metric := &dto.Metric{}
	require.NoError(t, c.routesMatched.WithLabelValues("example.com").Write(metric))
	assert.Equal(t, float64(2), metric.GetCounter().GetValue())
}

func TestRecordBackendFailureIncrementsCounter(t *testing.T) {
	c := newTestCollector(t)
	c.RecordBackendFailure("backend.internal")

	metric := &dto.Metric{}
	require.NoError(t, c.backendFailures.WithLabelValues("backend.internal").Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestRecordThemeAppliedAndAborted(t *testing.T) {
	c := newTestCollector(t)
	c.RecordThemeApplied("ok")
	c.RecordThemeAborted()

	applied := &dto.Metric{}
	require.NoError(t, c.themeApplied.WithLabelValues("ok").Write(applied))
	assert.Equal(t, float64(1), applied.GetCounter().GetValue())

	aborted := &dto.Metric{}
	require.NoError(t, c.themeAborted.Write(aborted))
	assert.Equal(t, float64(1), aborted.GetCounter().GetValue())
}
