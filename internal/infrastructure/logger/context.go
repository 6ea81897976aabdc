package logger

import (
	"context"

	"github.com/erp/receivables/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	actorKey
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request id in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id recorded in ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithActor records the authenticated actor in ctx
func WithActor(ctx context.Context, actor shared.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor recorded in ctx
func ActorFrom(ctx context.Context) (shared.Actor, bool) {
	a, ok := ctx.Value(actorKey).(shared.Actor)
	return a, ok
}

// L returns the context logger enriched with trace_id, span_id,
// request_id, tenant_id and user_id when they are present.
//
//	logger.L(ctx).Info("payment recorded", zap.String("receivable_id", id))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich adds the correlation fields of ctx to l
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 5)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if a, ok := ActorFrom(ctx); ok {
		fields = append(fields,
			zap.String("tenant_id", a.TenantID.String()),
			zap.String("user_id", a.UserID.String()),
		)
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
