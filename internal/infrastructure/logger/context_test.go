package logger

import (
	"context"
	"testing"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestL_AddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	actor := shared.NewActor(uuid.New(), uuid.New())

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithActor(ctx, actor)
	ctx = trace.ContextWithSpanContext(ctx, sc)

	L(ctx).Info("payment recorded")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, actor.TenantID.String(), fields["tenant_id"])
	assert.Equal(t, actor.UserID.String(), fields["user_id"])
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestEnrich_NoFields(t *testing.T) {
	l := zap.NewNop()
	assert.Same(t, l, Enrich(context.Background(), l))

	got, ok := ActorFrom(context.Background())
	assert.False(t, ok)
	assert.Equal(t, shared.Actor{}, got)
	assert.Empty(t, RequestID(context.Background()))
}
