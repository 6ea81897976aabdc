package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/auth"
	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/internal/infrastructure/logger"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/erp/receivables/internal/interfaces/http/handler"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/erp/receivables/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
		_ = closeLog()
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Receivables service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()
	log.Info("Starting receivables ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	telemetry.ServiceVersion = version
	sig, err := telemetry.Setup(ctx, telemetry.Settings{
		ServiceName:       cfg.Telemetry.ServiceName,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		Traces:            cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		SpanProfiles:      cfg.Telemetry.Profiling.SpanProfiles,
		Metrics:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		Logs:              cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		LogLevel:          logger.ParseLevel(cfg.Log.Level),
		Profiling:         profilerConfig(cfg.Telemetry.Profiling),
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = sig.Shutdown(context.Background()) }()
	log = sig.Logger(log)

	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	tracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err := tracing.Register(db.DB); err != nil {
		return err
	}

	var (
		meter         metric.Meter
		ledgerMetrics appledger.Metrics
	)
	if meter = sig.Meter(cfg.Telemetry.ServiceName); meter != nil {
		dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DefaultDBMetricsConfig(), log)
		if err != nil {
			return err
		}
		if err := dbMetrics.Register(ctx, db.DB); err != nil {
			return err
		}
		defer dbMetrics.Stop()

		lm, err := telemetry.NewLedgerMetrics(meter)
		if err != nil {
			return err
		}
		ledgerMetrics = lm
	}

	locker, err := lock.NewLockerFactory(cfg.Redis, cfg.Ledger,
		lock.WithLogger(log),
		lock.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateLocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = locker.Close() }()

	txScope := persistence.NewGormTransactionScope(db.DB)
	receivables := persistence.NewGormReceivableRepository(db.DB)
	payments := persistence.NewGormPaymentEventRepository(db.DB)
	history := persistence.NewGormHistoryRepository(db.DB)

	recorderOpts := []appledger.RecorderOption{
		appledger.WithMaxConflictRetries(cfg.Ledger.MaxConflictRetries),
		appledger.WithRecorderLogger(log),
	}
	if ledgerMetrics != nil {
		recorderOpts = append(recorderOpts, appledger.WithRecorderMetrics(ledgerMetrics))
	}

	handlers := router.Handlers{
		Receivables: handler.NewReceivableHandler(
			appledger.NewReceivableService(txScope, valueobject.Currency(cfg.Ledger.DefaultCurrency)),
			appledger.NewPaymentRecorder(txScope, receivables, locker, recorderOpts...),
			appledger.NewQueryService(receivables, payments, history),
			log,
		),
		Analytics: handler.NewAnalyticsHandler(appledger.NewAnalyticsService(receivables, payments,
			appledger.WithTrendMonths(cfg.Ledger.TrendMonths),
			appledger.WithTopDebtors(cfg.Ledger.TopDebtorsLimit),
		), log),
		Reconciliation: handler.NewReconciliationHandler(
			appledger.NewReconciliationService(txScope, receivables, payments, history, locker, ledgerMetrics, log), log),
		System: handler.NewSystemHandler(version, map[string]handler.Pinger{"database": db}),
	}

	var jwtService *auth.JWTService
	if cfg.JWT.Enabled {
		jwtService = auth.NewJWTService(cfg.JWT)
	} else {
		log.Warn("JWT disabled, trusting X-Tenant-ID and X-User-ID headers")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.Options{
		HTTP:    cfg.HTTP,
		Auth:    middleware.DefaultAuthConfig(jwtService),
		Tracing: middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: sig.Tracing()},
		Meter:   meter,
		Logger:  log,
	}, handlers)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}

func profilerConfig(p config.ProfilingConfig) telemetry.ProfilerConfig {
	return telemetry.ProfilerConfig{
		Enabled:              p.Enabled,
		ServerAddress:        p.ServerAddress,
		ApplicationName:      p.ApplicationName,
		BasicAuthUser:        p.BasicAuthUser,
		BasicAuthPassword:    p.BasicAuthPassword,
		ProfileTypes:         p.ProfileTypes,
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
		DisableGCRuns:        p.DisableGCRuns,
	}
}
