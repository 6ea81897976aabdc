package ledger

import (
	"context"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
)

// ReceivableFilter defines filtering options for receivable queries.
// OverdueAsOf restricts the result to receivables overdue at that instant.
type ReceivableFilter struct {
	shared.Filter
	Status      *Status
	PayerID     *uuid.UUID
	DueFrom     *time.Time
	DueTo       *time.Time
	OverdueAsOf *time.Time
}

// ReceivableRepository persists receivables. Every method is tenant scoped;
// rows of other tenants are never returned or affected.
type ReceivableRepository interface {
	// Create inserts a new receivable
	Create(ctx context.Context, r *Receivable) error

	// FindByID finds a receivable of a tenant; NOT_FOUND on tenant mismatch
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Receivable, error)

	// FindByDocumentNumber finds a receivable by its billing document number
	FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*Receivable, error)

	// FindAll lists receivables of a tenant with filtering and paging
	FindAll(ctx context.Context, tenantID uuid.UUID, filter ReceivableFilter) ([]Receivable, int64, error)

	// ListAll returns every receivable of a tenant, for analytics and reconciliation
	ListAll(ctx context.Context, tenantID uuid.UUID) ([]Receivable, error)

	// ExistsByDocumentNumber checks document number uniqueness within a tenant
	ExistsByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (bool, error)

	// SaveWithLock persists r only if the stored version is r.Version-1;
	// otherwise it returns a conflict error
	SaveWithLock(ctx context.Context, r *Receivable) error
}

// PaymentEventRepository persists the append-only payment ledger
type PaymentEventRepository interface {
	Create(ctx context.Context, e *PaymentEvent) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*PaymentEvent, error)
	// FindByReceivable returns a receivable's payments ordered by payment date then record time
	FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]PaymentEvent, error)
	// FindByIdempotencyKey returns nil, nil when no payment carries the key
	FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*PaymentEvent, error)
	// ListByPaymentDate returns payments with from <= payment_date < to
	ListByPaymentDate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]PaymentEvent, error)
	ListAll(ctx context.Context, tenantID uuid.UUID) ([]PaymentEvent, error)
}

// HistoryFilter defines filtering options for audit trail reads
type HistoryFilter struct {
	shared.Filter
	Type *HistoryType
}

// HistoryRepository is the audit log. It has no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, entries ...*HistoryEntry) error
	// FindByReceivable returns entries most recent first
	FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID, filter HistoryFilter) ([]HistoryEntry, int64, error)
	// FindByTenant returns entries of all receivables of a tenant, most recent first
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter) ([]HistoryEntry, int64, error)
	// ListByReceivable returns every entry of a receivable without paging
	ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]HistoryEntry, error)
	ListAll(ctx context.Context, tenantID uuid.UUID) ([]HistoryEntry, error)
}
