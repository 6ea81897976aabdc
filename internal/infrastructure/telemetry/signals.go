package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceVersion is reported as service.version on every exported signal
var ServiceVersion = "1.0.0"

const (
	shutdownTimeout       = 10 * time.Second
	defaultMetricInterval = time.Minute
)

// Settings selects the signals the service exports. Traces, metrics and
// logs share one OTLP/gRPC collector; profiles go to Pyroscope.
type Settings struct {
	ServiceName       string
	CollectorEndpoint string
	Insecure          bool

	Traces        bool
	SamplingRatio float64
	// SpanProfiles links CPU samples to the span that produced them; it
	// has effect only when Traces and Profiling are both on
	SpanProfiles bool

	Metrics        bool
	MetricInterval time.Duration

	Logs     bool
	LogLevel zapcore.Level

	Profiling ProfilerConfig
}

// Signals owns the exporters started by Setup. Disabled signals stay on the
// OpenTelemetry no-op globals.
type Signals struct {
	settings Settings
	logger   *zap.Logger
	traces   *sdktrace.TracerProvider
	metrics  *sdkmetric.MeterProvider
	logs     *sdklog.LoggerProvider
	profiler *Profiler
}

// Setup starts every signal s enables and registers it globally. When one
// fails, those already started are shut down.
func Setup(ctx context.Context, s Settings, logger *zap.Logger) (*Signals, error) {
	sig := &Signals{settings: s, logger: logger}
	if err := sig.start(ctx); err != nil {
		_ = sig.Shutdown(context.Background())
		return nil, err
	}
	logger.Info("Telemetry ready",
		zap.String("service_name", s.ServiceName),
		zap.Strings("signals", sig.Active()),
	)
	return sig, nil
}

func (sig *Signals) start(ctx context.Context) error {
	s := sig.settings
	var res *resource.Resource
	if s.Traces || s.Metrics || s.Logs {
		var err error
		if res, err = newResource(s.ServiceName); err != nil {
			return err
		}
	}

	if s.Traces {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.CollectorEndpoint)}
		if s.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		sig.traces = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(samplerFor(s.SamplingRatio)),
		)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
	}

	if s.Metrics {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(s.CollectorEndpoint)}
		if s.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		interval := s.MetricInterval
		if interval <= 0 {
			interval = defaultMetricInterval
		}
		sig.metrics = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
		)
		otel.SetMeterProvider(sig.metrics)
	}

	if s.Logs {
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(s.CollectorEndpoint)}
		if s.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exp, err := otlploggrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP logs exporter: %w", err)
		}
		sig.logs = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		global.SetLoggerProvider(sig.logs)
	}

	profiler, err := NewProfiler(s.Profiling, sig.logger)
	if err != nil {
		return err
	}
	sig.profiler = profiler

	if sig.traces != nil {
		if s.SpanProfiles && profiler.Running() {
			otel.SetTracerProvider(otelpyroscope.NewTracerProvider(sig.traces))
		} else {
			otel.SetTracerProvider(sig.traces)
		}
	}
	return nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Active names the signals being exported, in the order Setup starts them
func (sig *Signals) Active() []string {
	active := []string{}
	if sig.traces != nil {
		active = append(active, "traces")
	}
	if sig.metrics != nil {
		active = append(active, "metrics")
	}
	if sig.logs != nil {
		active = append(active, "logs")
	}
	if sig.profiler != nil && sig.profiler.Running() {
		active = append(active, "profiles")
	}
	return active
}

// Tracing reports whether spans are exported
func (sig *Signals) Tracing() bool {
	return sig.traces != nil
}

// Meter returns a meter on the metrics pipeline, or nil when metrics are off
func (sig *Signals) Meter(name string) metric.Meter {
	if sig.metrics == nil {
		return nil
	}
	return sig.metrics.Meter(name)
}

// Logger tees base into the OTEL logs pipeline at the configured level.
// base is returned unchanged when logs are off.
func (sig *Signals) Logger(base *zap.Logger) *zap.Logger {
	if sig.logs == nil {
		return base
	}
	otelCore := &minLevelCore{
		Core: otelzap.NewCore(sig.settings.ServiceName, otelzap.WithLoggerProvider(sig.logs)),
		min:  sig.settings.LogLevel,
	}
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, otelCore)
	}))
}

// Shutdown stops the signals in reverse start order, flushing what is
// pending, and reports every failure
func (sig *Signals) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if sig.profiler != nil {
		errs = append(errs, sig.profiler.Stop())
	}
	if sig.logs != nil {
		errs = append(errs, wrapShutdown("logger", sig.logs.Shutdown(ctx)))
	}
	if sig.metrics != nil {
		errs = append(errs, wrapShutdown("meter", sig.metrics.Shutdown(ctx)))
	}
	if sig.traces != nil {
		errs = append(errs, wrapShutdown("tracer", sig.traces.Shutdown(ctx)))
	}
	err := errors.Join(errs...)
	if err != nil {
		sig.logger.Error("Telemetry shutdown incomplete", zap.Error(err))
	}
	return err
}

func wrapShutdown(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to shutdown %s provider: %w", provider, err)
}

// minLevelCore drops entries below min before they reach the OTEL core
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *minLevelCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *minLevelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &minLevelCore{Core: c.Core.With(fields), min: c.min}
}
