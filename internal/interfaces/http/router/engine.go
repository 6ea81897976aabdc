package router

import (
	"time"

	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/logger"
	"github.com/erp/receivables/internal/interfaces/http/handler"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the API handlers mounted by NewEngine
type Handlers struct {
	Receivables    *handler.ReceivableHandler
	Analytics      *handler.AnalyticsHandler
	Reconciliation *handler.ReconciliationHandler
	System         *handler.SystemHandler
}

// Options configure the engine's middleware stack
type Options struct {
	HTTP    config.HTTPConfig
	Auth    middleware.AuthConfig
	Tracing middleware.TracingConfig
	// Meter records HTTP metrics; nil disables them
	Meter metric.Meter
	// RateLimiter is applied when HTTP.RateLimitEnabled is set;
	// nil builds one from HTTP.RateLimitRequests and HTTP.RateLimitWindow
	RateLimiter *middleware.RateLimiter
	Logger      *zap.Logger
}

// NewEngine builds the gin engine with the middleware stack and every ledger route.
// Middleware order: request id, recovery, access log, tracing, metrics, CORS,
// security headers, body limit, then on API routes auth, span enrichment and rate limiting.
func NewEngine(opts Options, h Handlers) (*gin.Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	metrics, err := middleware.HTTPMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Tracing(opts.Tracing))
	engine.Use(metrics)
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  opts.HTTP.CORSAllowOrigins,
		AllowMethods:  opts.HTTP.CORSAllowMethods,
		AllowHeaders:  opts.HTTP.CORSAllowHeaders,
		ExposeHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))

	// liveness stays reachable without credentials
	engine.GET("/health", h.System.Health)

	authCfg := opts.Auth
	if authCfg.Logger == nil {
		authCfg.Logger = log
	}
	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(middleware.Auth(authCfg), middleware.SpanEnricher())
	if opts.HTTP.RateLimitEnabled {
		limiter := opts.RateLimiter
		if limiter == nil {
			limiter = middleware.NewRateLimiter(opts.HTTP.RateLimitRequests, opts.HTTP.RateLimitWindow)
		}
		r.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimitRequests),
			zap.Duration("window", opts.HTTP.RateLimitWindow),
		)
	}

	receivableRoutes := NewDomainGroup("receivables", "/receivables")
	receivableRoutes.POST("", h.Receivables.Create)
	receivableRoutes.GET("", h.Receivables.List)
	receivableRoutes.GET("/:id", h.Receivables.Get)
	receivableRoutes.POST("/:id/payments/preview", h.Receivables.PreviewPayment)
	receivableRoutes.POST("/:id/payments", h.Receivables.RecordPayment)
	receivableRoutes.GET("/:id/payments", h.Receivables.ListPayments)
	receivableRoutes.GET("/:id/history", h.Receivables.ListHistory)
	receivableRoutes.POST("/:id/notes", h.Receivables.AddNote)
	r.Register(receivableRoutes)

	historyRoutes := NewDomainGroup("history", "/history")
	historyRoutes.GET("", h.Receivables.ListTenantHistory)
	r.Register(historyRoutes)

	analyticsRoutes := NewDomainGroup("analytics", "/analytics")
	analyticsRoutes.GET("/summary", h.Analytics.Summary)
	analyticsRoutes.GET("/trend", h.Analytics.Trend)
	analyticsRoutes.GET("/top-debtors", h.Analytics.TopDebtors)
	analyticsRoutes.GET("/aging", h.Analytics.Aging)
	analyticsRoutes.GET("/dashboard", h.Analytics.Dashboard)
	r.Register(analyticsRoutes)

	reconciliationRoutes := NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.POST("", h.Reconciliation.Reconcile)
	r.Register(reconciliationRoutes)

	systemRoutes := NewDomainGroup("system", "")
	systemRoutes.GET("/health", h.System.Health)
	r.Register(systemRoutes)

	r.Setup()
	return engine, nil
}
