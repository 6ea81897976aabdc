package ledger

import (
	"context"
	"fmt"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionScope provides transactional boundaries for multi-repository operations.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the ledger repositories within a transaction.
// All repositories returned share the same underlying database transaction, so a
// payment event, the receivable update and its history entries commit together.
type TransactionalRepositories interface {
	Receivables() ledger.ReceivableRepository
	Payments() ledger.PaymentEventRepository
	History() ledger.HistoryRepository
}

// Locker serializes writers of the same key across processes.
// Acquire waits at most the implementation's bounded timeout and then
// fails with a conflict error.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}

// ReceivableLockKey is the lock key guarding the write phase of one receivable
func ReceivableLockKey(tenantID, receivableID uuid.UUID) string {
	return fmt.Sprintf("ledger:receivable:%s:%s", tenantID, receivableID)
}

// Metrics receives ledger business events
type Metrics interface {
	PaymentRecorded(ctx context.Context, tenantID uuid.UUID, method string, amount decimal.Decimal, settled bool)
	PaymentReplayed(ctx context.Context, tenantID uuid.UUID)
	ConflictDetected(ctx context.Context, tenantID uuid.UUID, willRetry bool)
	ReconciliationCompleted(ctx context.Context, tenantID uuid.UUID, discrepancies, repaired int)
}

type noopMetrics struct{}

func (noopMetrics) PaymentRecorded(context.Context, uuid.UUID, string, decimal.Decimal, bool) {}
func (noopMetrics) PaymentReplayed(context.Context, uuid.UUID) {}
func (noopMetrics) ConflictDetected(context.Context, uuid.UUID, bool) {}
func (noopMetrics) ReconciliationCompleted(context.Context, uuid.UUID, int, int) {}
