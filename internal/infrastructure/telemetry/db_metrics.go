package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DefaultDBMetricsConfig returns default configuration for database metrics.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query counts and latency and samples the connection pool
type DBMetrics struct {
	poolConnections *Gauge
	queryTotal      *Counter
	queryDuration   *Histogram
	slowQueryTotal  *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics creates the database instruments on meter
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	in := NewInstruments(meter)
	m := &DBMetrics{
		poolConnections: in.Gauge("db_pool_connections", "Connections in the pool by state", "{connection}"),
		queryTotal:      in.Counter("db_query_total", "Statements executed by operation", "{query}"),
		slowQueryTotal:  in.Counter("db_slow_query_total", "Statements slower than the threshold by table", "{query}"),
		queryDuration:   in.Histogram("db_query_duration_seconds", "Statement latency in seconds", "s", DBDurationBuckets),
		config:          cfg,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one completed statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	if operation == "" {
		operation = "OTHER"
	}
	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.Seconds(ctx, duration, AttrDBOperation.String(operation))
	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// Register installs query callbacks on db and starts pool sampling
func (m *DBMetrics) Register(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	m.sqlDB = sqlDB

	if err := registerAround(db, "db_metrics", markMetricsStart, m.afterStatement); err != nil {
		return err
	}

	m.wg.Add(1)
	go m.samplePool(ctx)
	m.logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", m.config.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", m.config.PoolStatsInterval),
	)
	return nil
}

func (m *DBMetrics) afterStatement(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var duration time.Duration
	if start, ok := ctx.Value(metricsStartTimeKey).(time.Time); ok {
		duration = time.Since(start)
	}
	m.RecordQuery(ctx, operation, db.Statement.Table, duration)
}

func (m *DBMetrics) samplePool(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.PoolStatsInterval)
	defer ticker.Stop()

	m.collectPoolStats(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.collectPoolStats(ctx)
		}
	}
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	if m.sqlDB == nil {
		return
	}
	stats := m.sqlDB.Stats()
	m.poolConnections.Set(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Set(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Set(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool sampling. Safe to call multiple times.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

const metricsStartTimeKey contextKey = "db_metrics_start_time"

func markMetricsStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, metricsStartTimeKey, time.Now())
}
