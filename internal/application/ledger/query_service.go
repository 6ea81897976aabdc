package ledger

import (
	"context"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

var ledgerLanguage = language.English

// QueryService is the tenant-scoped read interface over receivables,
// their payments and their audit trail
type QueryService struct {
	receivables ledger.ReceivableRepository
	payments    ledger.PaymentEventRepository
	history     ledger.HistoryRepository
}

// NewQueryService creates a new QueryService
func NewQueryService(
	receivables ledger.ReceivableRepository,
	payments ledger.PaymentEventRepository,
	history ledger.HistoryRepository,
) *QueryService {
	return &QueryService{receivables: receivables, payments: payments, history: history}
}

// List returns a page of the tenant's receivables
func (s *QueryService) List(ctx context.Context, tenantID uuid.UUID, filter ledger.ReceivableFilter) (shared.Paginated[ledger.Receivable], error) {
	if err := shared.RequireTenant(tenantID); err != nil {
		return shared.Paginated[ledger.Receivable]{}, err
	}
	items, total, err := s.receivables.FindAll(ctx, tenantID, filter)
	if err != nil {
		return shared.Paginated[ledger.Receivable]{}, err
	}
	f := filter.Filter.Normalize(nil, "")
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// Get returns one receivable of the tenant
func (s *QueryService) Get(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Receivable, error) {
	if err := shared.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	return s.receivables.FindByID(ctx, tenantID, id)
}

// ListHistory returns a receivable's audit trail, most recent first
func (s *QueryService) ListHistory(ctx context.Context, tenantID, receivableID uuid.UUID, filter ledger.HistoryFilter) (shared.Paginated[ledger.HistoryEntry], error) {
	if _, err := s.Get(ctx, tenantID, receivableID); err != nil {
		return shared.Paginated[ledger.HistoryEntry]{}, err
	}
	items, total, err := s.history.FindByReceivable(ctx, tenantID, receivableID, filter)
	if err != nil {
		return shared.Paginated[ledger.HistoryEntry]{}, err
	}
	f := filter.Filter.Normalize(nil, "")
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// ListTenantHistory returns the audit trail of every receivable of the tenant
func (s *QueryService) ListTenantHistory(ctx context.Context, tenantID uuid.UUID, filter ledger.HistoryFilter) (shared.Paginated[ledger.HistoryEntry], error) {
	if err := shared.RequireTenant(tenantID); err != nil {
		return shared.Paginated[ledger.HistoryEntry]{}, err
	}
	items, total, err := s.history.FindByTenant(ctx, tenantID, filter)
	if err != nil {
		return shared.Paginated[ledger.HistoryEntry]{}, err
	}
	f := filter.Filter.Normalize(nil, "")
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// ListPayments returns a receivable's payment ledger in payment order
func (s *QueryService) ListPayments(ctx context.Context, tenantID, receivableID uuid.UUID) ([]ledger.PaymentEvent, error) {
	if _, err := s.Get(ctx, tenantID, receivableID); err != nil {
		return nil, err
	}
	return s.payments.FindByReceivable(ctx, tenantID, receivableID)
}
