package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_AllDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sig, err := Setup(context.Background(), Settings{ServiceName: "ledger-test"}, zap.New(core))
	require.NoError(t, err)

	assert.Empty(t, sig.Active())
	assert.False(t, sig.Tracing())
	assert.Nil(t, sig.Meter("ledger"))
	base := zaptest.NewLogger(t)
	assert.Same(t, base, sig.Logger(base))
	assert.NoError(t, sig.Shutdown(context.Background()))
	assert.NoError(t, sig.Shutdown(context.Background()))

	ready := logs.FilterMessage("Telemetry ready").All()
	require.Len(t, ready, 1)
	assert.Equal(t, "ledger-test", ready[0].ContextMap()["service_name"])
}

func TestSetup_InvalidProfilingFails(t *testing.T) {
	_, err := Setup(context.Background(), Settings{
		ServiceName: "ledger-test",
		Profiling:   ProfilerConfig{Enabled: true, ApplicationName: "receivables"},
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server address is required")
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1).Description())
	assert.Equal(t, "AlwaysOnSampler", samplerFor(2).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestNewResource(t *testing.T) {
	res, err := newResource("receivables-ledger")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "receivables-ledger", attrs["service.name"])
	assert.Equal(t, ServiceVersion, attrs["service.version"])
}

func TestMinLevelCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &minLevelCore{Core: inner, min: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))

	log := zap.New(core).With(zap.String("tenant_id", "t-1"))
	log.Info("dropped")
	log.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "t-1", entry.ContextMap()["tenant_id"])
}

func TestSignals_LoggerTeesIntoOTEL(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inner, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(inner)
	sig := &Signals{
		settings: Settings{ServiceName: "svc", LogLevel: zapcore.InfoLevel},
		logger:   base,
		logs:     provider,
	}
	bridged := sig.Logger(base)

	assert.NotSame(t, base, bridged)
	assert.Equal(t, []string{"logs"}, sig.Active())
	assert.NotPanics(t, func() { bridged.Info("payment recorded", zap.String("receivable_id", "r-1")) })
	assert.Equal(t, 1, logs.Len(), "the base core still receives every entry")
}
