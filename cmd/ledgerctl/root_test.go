package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/auth"
	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "ledgerctl-test", Env: "test"},
		JWT: config.JWTConfig{
			Enabled:               true,
			Secret:                "test-secret-with-enough-length-1234",
			Issuer:                "receivables",
			AccessTokenExpiration: time.Hour,
		},
		Log: config.LogConfig{Level: "error"},
		Ledger: config.LedgerConfig{
			LockTimeout:        time.Second,
			LockTTL:            10 * time.Second,
			MaxConflictRetries: 3,
			TrendMonths:        6,
			DefaultCurrency:    "BRL",
			TopDebtorsLimit:    5,
		},
	}
}

// useTestLedger points the commands at a shared in-memory SQLite database
// and returns a handle the test can seed through
func useTestLedger(t *testing.T) *persistence.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))

	seed, err := persistence.Open(sqlite.Open(dsn), nil)
	require.NoError(t, err)
	sqlDB, err := seed.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, seed.AutoMigrate())

	prevLoad, prevOpen := loadConfig, openDatabase
	loadConfig = func() (*config.Config, error) { return testConfig(), nil }
	openDatabase = func(*config.Config, *zap.Logger) (*persistence.Database, error) {
		db, err := persistence.Open(sqlite.Open(dsn), nil)
		if err != nil {
			return nil, err
		}
		conn, err := db.DB.DB()
		if err != nil {
			return nil, err
		}
		conn.SetMaxOpenConns(1)
		return db, nil
	}
	t.Cleanup(func() { loadConfig, openDatabase = prevLoad, prevOpen })
	return seed
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func seedOverdue(t *testing.T, db *persistence.Database, actor shared.Actor, paid string) *ledger.Receivable {
	t.Helper()
	ctx := context.Background()
	txScope := persistence.NewGormTransactionScope(db.DB)
	receivables := persistence.NewGormReceivableRepository(db.DB)

	r, err := appledger.NewReceivableService(txScope, valueobject.DefaultCurrency).CreateReceivable(ctx,
		appledger.CreateReceivableCommand{
			Actor:          actor,
			DocumentNumber: "INV-" + uuid.NewString()[:8],
			PayerID:        uuid.New(),
			PayerName:      "Acme",
			FaceValue:      decimal.NewFromInt(1000),
			DueDate:        time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		})
	require.NoError(t, err)

	if paid != "" {
		recorder := appledger.NewPaymentRecorder(txScope, receivables, lock.NewInMemoryLocker(lock.WithTimeout(time.Second)))
		_, err := recorder.RecordPayment(ctx, appledger.RecordPaymentCommand{
			Actor:        actor,
			ReceivableID: r.ID,
			Amount:       decimal.RequireFromString(paid),
			PaymentDate:  time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
			Method:       "BANK_SLIP",
		})
		require.NoError(t, err)
	}
	return r
}

func TestGlobalOptions_Actor(t *testing.T) {
	tenantID, userID := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		opts    globalOptions
		wantErr string
	}{
		{"missing tenant", globalOptions{}, "--tenant is required"},
		{"malformed tenant", globalOptions{tenant: "nope"}, "invalid --tenant"},
		{"nil tenant", globalOptions{tenant: uuid.Nil.String()}, "Tenant ID is required"},
		{"malformed user", globalOptions{tenant: tenantID.String(), user: "nope"}, "invalid --user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.actor()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	actor, err := (&globalOptions{tenant: tenantID.String(), user: userID.String()}).actor()
	require.NoError(t, err)
	assert.Equal(t, shared.NewActor(tenantID, userID), actor)

	actor, err = (&globalOptions{tenant: tenantID.String()}).actor()
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, actor.UserID)
}

func TestParseAsOf(t *testing.T) {
	got, err := parseAsOf("2026-02-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = parseAsOf("15/02/2026")
	assert.Error(t, err)

	got, err = parseAsOf("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got, time.Minute)
}

func TestAgingCommand(t *testing.T) {
	db := useTestLedger(t)
	actor := shared.NewActor(uuid.New(), uuid.New())
	seedOverdue(t, db, actor, "400")

	out, err := run(t, "aging", "--tenant", actor.TenantID.String(), "--as-of", "2026-02-15")
	require.NoError(t, err)

	var totals []ledger.AgingBucketTotal
	require.NoError(t, json.Unmarshal([]byte(out), &totals))
	require.Len(t, totals, 4)
	assert.Equal(t, "31-60", totals[1].Label)
	assert.Equal(t, 1, totals[1].Count)
	assert.True(t, totals[1].Total.Equal(decimal.NewFromInt(600)))
	assert.Zero(t, totals[0].Count)

	out, err = run(t, "aging", "--tenant", actor.TenantID.String(), "--as-of", "2026-02-15", "--buckets", "1,15")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &totals))
	require.Len(t, totals, 2)
	assert.Equal(t, "15+", totals[1].Label)
	assert.Equal(t, 1, totals[1].Count)

	_, err = run(t, "aging", "--tenant", actor.TenantID.String(), "--buckets", "30,10")
	assert.Error(t, err)
}

func TestAgingCommand_TenantIsolation(t *testing.T) {
	db := useTestLedger(t)
	seedOverdue(t, db, shared.NewActor(uuid.New(), uuid.New()), "")

	out, err := run(t, "aging", "--tenant", uuid.NewString(), "--as-of", "2026-02-15")
	require.NoError(t, err)

	var totals []ledger.AgingBucketTotal
	require.NoError(t, json.Unmarshal([]byte(out), &totals))
	for _, b := range totals {
		assert.Zero(t, b.Count, b.Label)
	}
}

func TestSummaryCommand(t *testing.T) {
	db := useTestLedger(t)
	actor := shared.NewActor(uuid.New(), uuid.New())
	seedOverdue(t, db, actor, "250")

	out, err := run(t, "summary", "--tenant", actor.TenantID.String(), "--as-of", "2026-02-15")
	require.NoError(t, err)

	var dashboard appledger.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &dashboard))
	assert.Equal(t, 1, dashboard.Summary.PartialCount)
	assert.Equal(t, 1, dashboard.Summary.OverdueCount)
	assert.True(t, dashboard.Summary.TotalOverdue.Equal(decimal.NewFromInt(750)))
	assert.Len(t, dashboard.Trend, 6)
	require.Len(t, dashboard.TopDebtors, 1)
	assert.Equal(t, "Acme", dashboard.TopDebtors[0].PayerName)
}

func TestReconcileCommand(t *testing.T) {
	db := useTestLedger(t)
	actor := shared.NewActor(uuid.New(), uuid.New())
	r := seedOverdue(t, db, actor, "400")

	out, err := run(t, "reconcile", "--tenant", actor.TenantID.String())
	require.NoError(t, err)
	var report appledger.ReconciliationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Consistent)
	assert.Empty(t, report.Discrepancies)

	require.NoError(t, db.DB.Exec("DELETE FROM history_entries WHERE type = ?", string(ledger.HistoryPayment)).Error)

	out, err = run(t, "reconcile", "--tenant", actor.TenantID.String(), "--receivable", r.ID.String(), "--repair")
	require.NoError(t, err)
	report = appledger.ReconciliationReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Repair)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 1, report.Counts[ledger.DiscrepancyMissingHistory])

	out, err = run(t, "reconcile", "--tenant", actor.TenantID.String())
	require.NoError(t, err)
	report = appledger.ReconciliationReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Consistent)

	_, err = run(t, "reconcile", "--tenant", actor.TenantID.String(), "--receivable", "nope")
	assert.ErrorContains(t, err, "invalid --receivable")
}

func TestTokenCommand(t *testing.T) {
	useTestLedger(t)
	actor := shared.NewActor(uuid.New(), uuid.New())

	out, err := run(t, "token", "--tenant", actor.TenantID.String(), "--user", actor.UserID.String(), "--ttl", "15m")
	require.NoError(t, err)

	var tok tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.ExpiresAt, time.Minute)

	claims, err := auth.NewJWTService(testConfig().JWT).ValidateToken(tok.AccessToken)
	require.NoError(t, err)
	got, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	_, err = run(t, "token", "--tenant", actor.TenantID.String())
	assert.ErrorContains(t, err, "--user is required")
}
