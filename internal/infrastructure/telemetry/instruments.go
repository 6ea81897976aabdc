package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments creates instruments on one meter and keeps the first failure,
// so a metrics set is declared field by field and checked once with Err.
// A failed instrument is replaced by a no-op one.
//
//	in := telemetry.NewInstruments(meter)
//	m := &ledgerMetrics{payments: in.Counter("ledger_payments_total", "Payments recorded", "{payment}")}
//	if err := in.Err(); err != nil { ... }
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments returns a builder for meter; a nil meter builds no-op instruments
func NewInstruments(meter metric.Meter) *Instruments {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	return &Instruments{meter: meter}
}

// Err reports every instrument that could not be created
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}

func (in *Instruments) fail(kind, name string, err error) {
	in.errs = append(in.errs, fmt.Errorf("create %s %s: %w", kind, name, err))
}

// Counter is a monotonic int64 sum
type Counter struct {
	inner metric.Int64Counter
}

// Counter declares a monotonic counter
func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.fail("counter", name, err)
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return &Counter{inner: c}
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// UpDown is an int64 sum that may decrease, such as in-flight work
type UpDown struct {
	inner metric.Int64UpDownCounter
}

// UpDown declares a non-monotonic counter
func (in *Instruments) UpDown(name, description, unit string) *UpDown {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.fail("up-down counter", name, err)
		c, _ = noop.Meter{}.Int64UpDownCounter(name)
	}
	return &UpDown{inner: c}
}

// Add adds n, which may be negative
func (u *UpDown) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	u.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Histogram is a float64 distribution
type Histogram struct {
	inner metric.Float64Histogram
}

// Histogram declares a distribution; bounds override the SDK's default buckets
func (in *Instruments) Histogram(name, description, unit string, bounds []float64) *Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit(unit)}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	if err != nil {
		in.fail("histogram", name, err)
		h, _ = noop.Meter{}.Float64Histogram(name)
	}
	return &Histogram{inner: h}
}

// Record records v
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Since records the seconds elapsed from start
func (h *Histogram) Since(ctx context.Context, start time.Time, attrs ...attribute.KeyValue) {
	h.Seconds(ctx, time.Since(start), attrs...)
}

// Seconds records d in seconds
func (h *Histogram) Seconds(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge holds the last int64 reading per attribute set
type Gauge struct {
	inner metric.Int64Gauge
}

// Gauge declares a point-in-time reading
func (in *Instruments) Gauge(name, description, unit string) *Gauge {
	g, err := in.meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.fail("gauge", name, err)
		g, _ = noop.Meter{}.Int64Gauge(name)
	}
	return &Gauge{inner: g}
}

// Set records the current reading
func (g *Gauge) Set(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	g.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}
