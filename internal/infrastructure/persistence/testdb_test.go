package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// newTestDatabase opens an in-memory SQLite database with the ledger schema
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(sqlite.Open("file::memory:"), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate())
	return db
}

// newMockDatabase creates a Database with a mocked Postgres connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// gorm pings the pool once on open
	mock.ExpectPing()
	db, err := Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), nil)
	require.NoError(t, err)
	return db, mock, mockDB
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestReceivable(t *testing.T, actor shared.Actor, doc, face string, due time.Time) *ledger.Receivable {
	t.Helper()
	r, err := ledger.NewReceivable(actor, ledger.NewReceivableInput{
		DocumentNumber: doc,
		PayerID:        uuid.New(),
		PayerName:      "Payer " + doc,
		FaceValue:      decimal.RequireFromString(face),
		DueDate:        due,
	})
	require.NoError(t, err)
	return r
}

// newTestPayment runs the state machine on r and returns the resulting event
func newTestPayment(t *testing.T, actor shared.Actor, r *ledger.Receivable, amount string, on time.Time, key string) *ledger.PaymentEvent {
	t.Helper()
	result, err := ledger.ApplyPayment(r, decimal.RequireFromString(amount), on)
	require.NoError(t, err)
	e, err := ledger.NewPaymentEvent(actor, r, result, on, ledger.PaymentDetailsInput{
		Method:         ledger.MethodInstantTransfer,
		ProofRef:       "proof-" + amount,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return e
}
