// Package integration runs the receivables ledger against real PostgreSQL
// and Redis servers started with testcontainers. The tests are skipped under
// go test -short.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/erp/receivables/internal/infrastructure/migration"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm/logger"
)

var (
	sharedPostgres    *tcpostgres.PostgresContainer
	sharedPostgresDSN string
	sharedPostgresMu  sync.Mutex

	sharedRedis     testcontainers.Container
	sharedRedisAddr string
	sharedRedisMu   sync.Mutex
)

// terminateContainers stops the shared containers once the package ran
func terminateContainers() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sharedPostgres != nil {
		_ = sharedPostgres.Terminate(ctx)
	}
	if sharedRedis != nil {
		_ = sharedRedis.Terminate(ctx)
	}
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
}

// TestDB is a migrated ledger database with empty tables
type TestDB struct {
	*persistence.Database
	DSN string
}

// NewTestDB returns a connection to the shared PostgreSQL container with the
// SQL migrations applied and every ledger table truncated
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipShort(t)

	dsn := postgresDSN(t)

	gormLog := logger.Default.LogMode(logger.Silent)
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormLog = logger.Default.LogMode(logger.Info)
	}
	db, err := persistence.Open(gormpostgres.Open(dsn), gormLog)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.DB.Exec("TRUNCATE TABLE history_entries, payment_events, receivables").Error)
	return &TestDB{Database: db, DSN: dsn}
}

func postgresDSN(t *testing.T) string {
	t.Helper()

	sharedPostgresMu.Lock()
	defer sharedPostgresMu.Unlock()
	if sharedPostgres != nil {
		return sharedPostgresDSN
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("receivables_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	migrateUp(t, dsn)

	sharedPostgres = container
	sharedPostgresDSN = dsn
	return dsn
}

// migrateUp applies the embedded SQL migrations
func migrateUp(t *testing.T, dsn string) {
	t.Helper()

	db, err := persistence.Open(gormpostgres.Open(dsn), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, "", zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
	require.NoError(t, m.Close())
}

// NewTestRedis returns a client of the shared Redis container with an empty keyspace
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	skipShort(t)

	client := redis.NewClient(&redis.Options{Addr: redisAddr(t)})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.FlushDB(context.Background()).Err())
	return client
}

func redisAddr(t *testing.T) string {
	t.Helper()

	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()
	if sharedRedis != nil {
		return sharedRedisAddr
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "Failed to get Redis endpoint")

	sharedRedis = container
	sharedRedisAddr = addr
	return addr
}
