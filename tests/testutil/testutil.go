// Package testutil provides shared fixtures for the receivables ledger tests:
// deterministic identities, a service bundle over any GORM database and
// polling assertions.
package testutil

import (
	"context"
	"testing"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger bundles the application services over one database and locker
type Ledger struct {
	Receivables    *appledger.ReceivableService
	Recorder       *appledger.PaymentRecorder
	Queries        *appledger.QueryService
	Analytics      *appledger.AnalyticsService
	Reconciliation *appledger.ReconciliationService
}

// NewLedger wires the services the way the server does
func NewLedger(db *gorm.DB, locker appledger.Locker, log *zap.Logger, opts ...appledger.RecorderOption) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	txScope := persistence.NewGormTransactionScope(db)
	receivables := persistence.NewGormReceivableRepository(db)
	payments := persistence.NewGormPaymentEventRepository(db)
	history := persistence.NewGormHistoryRepository(db)

	opts = append([]appledger.RecorderOption{appledger.WithRecorderLogger(log)}, opts...)
	return &Ledger{
		Receivables:    appledger.NewReceivableService(txScope, valueobject.DefaultCurrency),
		Recorder:       appledger.NewPaymentRecorder(txScope, receivables, locker, opts...),
		Queries:        appledger.NewQueryService(receivables, payments, history),
		Analytics:      appledger.NewAnalyticsService(receivables, payments),
		Reconciliation: appledger.NewReconciliationService(txScope, receivables, payments, history, locker, nil, log),
	}
}

// Issue creates an open receivable of face value due on due
func (l *Ledger) Issue(t *testing.T, actor shared.Actor, doc, face string, due time.Time) *ledger.Receivable {
	t.Helper()
	r, err := l.Receivables.CreateReceivable(context.Background(), appledger.CreateReceivableCommand{
		Actor:          actor,
		DocumentNumber: doc,
		PayerID:        NewTestUUID("payer-" + doc),
		PayerName:      "Payer " + doc,
		FaceValue:      decimal.RequireFromString(face),
		DueDate:        due,
	})
	require.NoError(t, err)
	return r
}

// Pay records a bank slip payment of amount on paidOn
func (l *Ledger) Pay(t *testing.T, actor shared.Actor, id uuid.UUID, amount string, paidOn time.Time) *appledger.RecordPaymentResult {
	t.Helper()
	res, err := l.Recorder.RecordPayment(context.Background(), PaymentCommand(actor, id, amount, paidOn))
	require.NoError(t, err)
	return res
}

// PaymentCommand builds a bank slip payment command
func PaymentCommand(actor shared.Actor, id uuid.UUID, amount string, paidOn time.Time) appledger.RecordPaymentCommand {
	return appledger.RecordPaymentCommand{
		Actor:        actor,
		ReceivableID: id,
		Amount:       decimal.RequireFromString(amount),
		PaymentDate:  paidOn,
		Method:       string(ledger.MethodBankSlip),
	}
}

// Day returns midnight UTC of the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NewTestUUID generates a deterministic UUID for testing.
// Uses the provided seed string to create a reproducible UUID.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestActor returns a fresh actor in its own tenant
func TestActor() shared.Actor {
	return shared.NewActor(uuid.New(), uuid.New())
}

// ContextWithTimeout creates a context with a timeout for tests.
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// RequireEventually retries condition until it passes or fails the test at timeout
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}
