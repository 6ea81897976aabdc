package persistence

import (
	"context"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Receivables returns the receivable repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Receivables() ledger.ReceivableRepository {
	return NewGormReceivableRepository(r.tx)
}

// Payments returns the payment event repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Payments() ledger.PaymentEventRepository {
	return NewGormPaymentEventRepository(r.tx)
}

// History returns the history repository scoped to the current transaction.
func (r *gormTransactionalRepositories) History() ledger.HistoryRepository {
	return NewGormHistoryRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
