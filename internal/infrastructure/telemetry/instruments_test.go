package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMeter returns a meter whose measurements are read by reader
func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// counterValue sums the data points of name whose attributes include match
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for _, kv := range match {
			if v, found := dp.Attributes.Value(kv.Key); !found || v != kv.Value {
				matched = false
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

func TestInstruments(t *testing.T) {
	reader, mp := newTestMeter(t)
	ctx := context.Background()

	in := telemetry.NewInstruments(mp.Meter("test"))
	payments := in.Counter("payments_total", "Payments", "{payment}")
	inFlight := in.UpDown("in_flight", "In flight", "{request}")
	latency := in.Histogram("latency_seconds", "Latency", "s", telemetry.DBDurationBuckets)
	open := in.Gauge("open_connections", "Open connections", "{connection}")
	require.NoError(t, in.Err())

	payments.Add(ctx, 5, attribute.String("method", "BANK_SLIP"))
	payments.Inc(ctx, attribute.String("method", "BANK_SLIP"))
	payments.Inc(ctx, attribute.String("method", "CASH"))
	inFlight.Add(ctx, 2)
	inFlight.Add(ctx, -1)
	latency.Record(ctx, 0.02)
	latency.Seconds(ctx, 300*time.Millisecond)
	open.Set(ctx, 3)
	open.Set(ctx, 5)

	rm := collect(t, reader)
	assert.Equal(t, int64(7), counterValue(t, rm, "payments_total"))
	assert.Equal(t, int64(6), counterValue(t, rm, "payments_total", attribute.String("method", "BANK_SLIP")))
	assert.Equal(t, int64(1), counterValue(t, rm, "in_flight"))

	m, ok := findMetric(rm, "latency_seconds")
	require.True(t, ok)
	hist := m.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, telemetry.DBDurationBuckets, hist.DataPoints[0].Bounds)

	m, ok = findMetric(rm, "open_connections")
	require.True(t, ok)
	gauge := m.Data.(metricdata.Gauge[int64])
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(5), gauge.DataPoints[0].Value)
}

func TestInstruments_InvalidNameFallsBackToNoop(t *testing.T) {
	_, mp := newTestMeter(t)

	in := telemetry.NewInstruments(mp.Meter("test"))
	c := in.Counter("1-not-a-valid-name", "bad", "1")
	h := in.Histogram("also invalid!", "bad", "s", nil)

	err := in.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1-not-a-valid-name")
	assert.Contains(t, err.Error(), "also invalid!")
	assert.NotPanics(t, func() {
		c.Inc(context.Background())
		h.Record(context.Background(), 1)
	})
}

func TestInstruments_NilMeter(t *testing.T) {
	in := telemetry.NewInstruments(nil)
	c := in.Counter("payments_total", "Payments", "{payment}")
	require.NoError(t, in.Err())
	assert.NotPanics(t, func() { c.Inc(context.Background()) })
}
