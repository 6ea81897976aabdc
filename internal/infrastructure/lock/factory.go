package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LockerFactory creates lockers based on configuration
type LockerFactory struct {
	redisConfig           config.RedisConfig
	ledgerConfig          config.LedgerConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*LockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *LockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker
// when Redis is enabled but unreachable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *LockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockerFactory creates a new factory
func NewLockerFactory(redisCfg config.RedisConfig, ledgerCfg config.LedgerConfig, opts ...FactoryOption) *LockerFactory {
	f := &LockerFactory{
		redisConfig:           redisCfg,
		ledgerConfig:          ledgerCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *LockerFactory) lockOptions() []Option {
	return []Option{
		WithTimeout(f.ledgerConfig.LockTimeout),
		WithTTL(f.ledgerConfig.LockTTL),
	}
}

// CreateRedisLocker connects to Redis and returns a locker owning the client
func (f *LockerFactory) CreateRedisLocker(ctx context.Context) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", f.redisConfig.Addr(), err)
	}

	l := NewRedisLocker(client, f.lockOptions()...)
	l.closer = client.Close
	return l, nil
}

// CreateInMemoryLocker creates an in-process locker.
// WARNING: it does not serialize writers running in other processes.
func (f *LockerFactory) CreateInMemoryLocker() *InMemoryLocker {
	return NewInMemoryLocker(f.lockOptions()...)
}

// CreateLocker returns a Redis locker when Redis is enabled, falling back
// to the in-memory locker when it is unreachable and fallback is allowed
func (f *LockerFactory) CreateLocker(ctx context.Context) (Locker, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory receivable locks")
		return f.CreateInMemoryLocker(), nil
	}

	l, err := f.CreateRedisLocker(ctx)
	if err == nil {
		f.logger.Info("Using Redis receivable locks", zap.String("addr", f.redisConfig.Addr()))
		return l, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for receivable locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory receivable locks. "+
		"Concurrent writers in other instances will not be serialized.",
		zap.Error(err),
	)
	return f.CreateInMemoryLocker(), nil
}
