package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs an in-memory span recorder as the global provider
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[string]interface{} {
	out := make(map[string]interface{})
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestStart(t *testing.T) {
	sr := recordSpans(t)

	ctx, op := telemetry.Start(context.Background(), "ledger", "record_payment",
		telemetry.AttrReceivableID.String("r-1"),
		telemetry.AttrAmount.String("100.50"),
	)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	op.Annotate(telemetry.AttrStatus.String("PARTIAL"))
	op.Succeed()
	op.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.record_payment", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	attrs := attrMap(spans[0])
	assert.Equal(t, "r-1", attrs["receivable_id"])
	assert.Equal(t, "100.50", attrs["amount"])
	assert.Equal(t, "PARTIAL", attrs["receivable_status"])
}

func TestOp_Fail(t *testing.T) {
	sr := recordSpans(t)
	conflict := errors.New("version conflict")

	_, op := telemetry.Start(context.Background(), "ledger", "record_payment")
	assert.Same(t, conflict, op.Fail(conflict))
	assert.NoError(t, op.Fail(nil))
	op.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "version conflict", s.Status().Description)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestOp_Retry(t *testing.T) {
	sr := recordSpans(t)

	_, op := telemetry.Start(context.Background(), "ledger", "record_payment")
	op.Retry(1, errors.New("version conflict"))
	op.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "conflict_retry", events[0].Name)
	attrs := map[string]interface{}{}
	for _, kv := range events[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(1), attrs["attempt"])
	assert.Equal(t, "version conflict", attrs["cause"])
}

func TestStart_NestsUnderParent(t *testing.T) {
	sr := recordSpans(t)

	ctx, parent := telemetry.Start(context.Background(), "ledger", "reconcile")
	_, child := telemetry.Start(ctx, "ledger", "repair")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}
