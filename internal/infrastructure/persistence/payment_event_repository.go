package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
	"github.com/erp/receivables/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	errPaymentNotFound  = shared.NewNotFoundError("PAYMENT_NOT_FOUND", "Payment not found")
	errDuplicatePayment = shared.NewConflictError("DUPLICATE_PAYMENT", "A payment with this idempotency key is being recorded concurrently")
)

// GormPaymentEventRepository implements ledger.PaymentEventRepository using GORM.
// Payment events are append-only; there is no update or delete.
type GormPaymentEventRepository struct {
	db *gorm.DB
}

// NewGormPaymentEventRepository creates a new GormPaymentEventRepository
func NewGormPaymentEventRepository(db *gorm.DB) *GormPaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

func (r *GormPaymentEventRepository) scoped(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.PaymentEventModel{}).Scopes(tenant.Scope(tenantID))
}

// Create appends a payment event
func (r *GormPaymentEventRepository) Create(ctx context.Context, e *ledger.PaymentEvent) error {
	model := models.PaymentEventModelFromDomain(e)
	return translateError(r.db.WithContext(ctx).Create(model).Error, nil, errDuplicatePayment)
}

// FindByID finds a payment event of a tenant
func (r *GormPaymentEventRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.PaymentEvent, error) {
	var model models.PaymentEventModel
	if err := r.scoped(ctx, tenantID).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, errPaymentNotFound, nil)
	}
	return model.ToDomain(), nil
}

// FindByReceivable returns a receivable's payments ordered by payment date then record time
func (r *GormPaymentEventRepository) FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]ledger.PaymentEvent, error) {
	var rows []models.PaymentEventModel
	err := r.scoped(ctx, tenantID).
		Where("receivable_id = ?", receivableID).
		Order("payment_date ASC, created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, nil, nil)
	}
	return paymentsToDomain(rows), nil
}

// FindByIdempotencyKey returns nil, nil when no payment carries the key
func (r *GormPaymentEventRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*ledger.PaymentEvent, error) {
	var model models.PaymentEventModel
	err := r.scoped(ctx, tenantID).Where("idempotency_key = ?", key).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err, nil, nil)
	}
	return model.ToDomain(), nil
}

// ListByPaymentDate returns payments with from <= payment_date < to
func (r *GormPaymentEventRepository) ListByPaymentDate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ledger.PaymentEvent, error) {
	var rows []models.PaymentEventModel
	err := r.scoped(ctx, tenantID).
		Where("payment_date >= ? AND payment_date < ?", from.UTC(), to.UTC()).
		Order("payment_date ASC, created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, nil, nil)
	}
	return paymentsToDomain(rows), nil
}

// ListAll returns every payment event of a tenant
func (r *GormPaymentEventRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.PaymentEvent, error) {
	var rows []models.PaymentEventModel
	if err := r.scoped(ctx, tenantID).Order("payment_date ASC, created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, nil, nil)
	}
	return paymentsToDomain(rows), nil
}

func paymentsToDomain(rows []models.PaymentEventModel) []ledger.PaymentEvent {
	out := make([]ledger.PaymentEvent, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormPaymentEventRepository implements ledger.PaymentEventRepository
var _ ledger.PaymentEventRepository = (*GormPaymentEventRepository)(nil)
