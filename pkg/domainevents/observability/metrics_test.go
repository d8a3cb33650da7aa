package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value whose attributes include key=value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordDispatch(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDispatch(ctx, "ORDER_PLACED", 3)
	m.RecordDispatch(ctx, "ORDER_PLACED", 1)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "domainevents.dispatches"), "event.name", "ORDER_PLACED"))

	fanOut := findMetric(rm, "domainevents.dispatch.handlers")
	require.NotNil(t, fanOut)
	hist, ok := fanOut.Data.(metricdata.Histogram[int64])
	require.True(t, ok, "Expected Histogram type")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, int64(4), hist.DataPoints[0].Sum)
}

func TestRecordHandler(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records invocations and latency", func(t *testing.T) {
		m.RecordHandler(ctx, "ORDER_PLACED", "projection", 5*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "domainevents.handler.invocations"), "handler", "projection"))

		latency := findMetric(rm, "domainevents.handler.latency_ms")
		require.NotNil(t, latency)
		hist, ok := latency.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})

	t.Run("records failures only when present", func(t *testing.T) {
		m.RecordHandler(ctx, "ORDER_PLACED", "mailer", time.Millisecond, errors.New("smtp down"))
		m.RecordHandler(ctx, "ORDER_PLACED", "audit", time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		failures := findMetric(rm, "domainevents.handler.failures")
		assert.Equal(t, int64(1), sumFor(t, failures, "handler", "mailer"))
		assert.Zero(t, sumFor(t, failures, "handler", "audit"))
	})
}

func TestRecordFailureStored(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordFailureStored(ctx, "ORDER_PLACED", nil)
	m.RecordFailureStored(ctx, "ORDER_PLACED", errors.New("disk full"))

	rm := collectMetrics(t, reader)
	stored := findMetric(rm, "domainevents.failures.stored")
	require.NotNil(t, stored)

	sum, ok := stored.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	bySuccess := map[bool]int64{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value("success")
		require.True(t, ok)
		bySuccess[v.AsBool()] += dp.Value
	}
	assert.Equal(t, map[bool]int64{true: 1, false: 1}, bySuccess)
}
