package middleware

import (
	"context"
	"time"

	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpMetrics holds all HTTP-related metrics instruments.
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  *telemetry.UpDown
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	in := telemetry.NewInstruments(meter)
	m := &httpMetrics{
		requestTotal:    in.Counter("http_server_request_total", "Total number of HTTP requests", "{request}"),
		requestDuration: in.Histogram("http_server_request_duration_seconds", "HTTP request latency distribution in seconds", "s", telemetry.HTTPDurationBuckets),
		requestSize:     in.Histogram("http_server_request_size_bytes", "HTTP request body size distribution in bytes", "By", telemetry.ByteSizeBuckets),
		responseSize:    in.Histogram("http_server_response_size_bytes", "HTTP response body size distribution in bytes", "By", telemetry.ByteSizeBuckets),
		activeRequests:  in.UpDown("http_server_active_requests", "Number of currently active HTTP requests", "{request}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics returns a middleware recording request count, latency, sizes
// and in-flight requests on meter. Routes are recorded by pattern to keep
// cardinality bounded. A nil meter disables collection.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }, nil
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestSize := c.Request.ContentLength

		m.activeRequests.Add(ctx, 1)
		c.Next()
		m.activeRequests.Add(ctx, -1)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		tenantID := ""
		if actor, ok := ActorFrom(c); ok {
			tenantID = actor.TenantID.String()
		}
		m.record(ctx, c.Request.Method, route, c.Writer.Status(), tenantID, time.Since(start), requestSize, c.Writer.Size())
	}, nil
}

func (m *httpMetrics) record(
	ctx context.Context,
	method, route string,
	statusCode int,
	tenantID string,
	duration time.Duration,
	requestSize int64,
	responseSize int,
) {
	requestAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
		telemetry.AttrHTTPStatusCode.Int(statusCode),
	}
	if tenantID != "" {
		requestAttrs = append(requestAttrs, telemetry.AttrTenantID.String(tenantID))
	}
	m.requestTotal.Inc(ctx, requestAttrs...)

	// latency and sizes only carry method and route
	baseAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	}
	m.requestDuration.Seconds(ctx, duration, baseAttrs...)
	if requestSize > 0 {
		m.requestSize.Record(ctx, float64(requestSize), baseAttrs...)
	}
	if responseSize > 0 {
		m.responseSize.Record(ctx, float64(responseSize), baseAttrs...)
	}
}
