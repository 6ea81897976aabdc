// Package telemetry ships the ledger's traces, metrics, logs and profiles
// through OpenTelemetry and Pyroscope.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName scopes the spans opened by Start
const TracerName = "receivables-ledger"

// Op is the span of one application operation. Error returns go through
// Fail, so a span ends in error exactly when the operation does.
//
//	ctx, op := telemetry.Start(ctx, "ledger", "record_payment", telemetry.AttrTenantID.String(id))
//	defer op.End()
//	if err != nil {
//		return nil, op.Fail(err)
//	}
type Op struct {
	span trace.Span
}

// Start opens the span "{component}.{name}" on the global tracer provider
func Start(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, component+"."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Op{span: span}
}

// Annotate adds attributes learned after the span started
func (o *Op) Annotate(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// Fail marks the span failed and returns err unchanged. A nil err is a no-op.
func (o *Op) Fail(err error) error {
	if err == nil {
		return nil
	}
	o.span.RecordError(err)
	o.span.SetStatus(codes.Error, err.Error())
	return err
}

// Retry records a conflict that the operation is about to retry
func (o *Op) Retry(attempt int, cause error) {
	o.span.AddEvent("conflict_retry", trace.WithAttributes(
		AttrAttempt.Int(attempt),
		attribute.String("cause", cause.Error()),
	))
}

// Succeed marks the span OK
func (o *Op) Succeed() {
	o.span.SetStatus(codes.Ok, "")
}

// End closes the span
func (o *Op) End() {
	o.span.End()
}
