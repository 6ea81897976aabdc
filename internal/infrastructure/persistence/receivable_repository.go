package persistence

import (
	"context"
	"strings"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
	"github.com/erp/receivables/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	errReceivableNotFound = shared.NewNotFoundError("RECEIVABLE_NOT_FOUND", "Receivable not found")
	errDuplicateDocument  = shared.NewConflictError("DUPLICATE_DOCUMENT", "A receivable with this document number already exists")
	errStaleReceivable    = shared.NewConflictError("CONCURRENT_MODIFICATION", "The receivable has been modified by another transaction")
)

// GormReceivableRepository implements ledger.ReceivableRepository using GORM
type GormReceivableRepository struct {
	db *gorm.DB
}

// NewGormReceivableRepository creates a new GormReceivableRepository
func NewGormReceivableRepository(db *gorm.DB) *GormReceivableRepository {
	return &GormReceivableRepository{db: db}
}

func (r *GormReceivableRepository) scoped(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ReceivableModel{}).Scopes(tenant.Scope(tenantID))
}

// Create inserts a new receivable
func (r *GormReceivableRepository) Create(ctx context.Context, receivable *ledger.Receivable) error {
	model := models.ReceivableModelFromDomain(receivable)
	return translateError(r.db.WithContext(ctx).Create(model).Error, nil, errDuplicateDocument)
}

// FindByID finds a receivable of a tenant
func (r *GormReceivableRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Receivable, error) {
	var model models.ReceivableModel
	if err := r.scoped(ctx, tenantID).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translateError(err, errReceivableNotFound, nil)
	}
	return model.ToDomain(), nil
}

// FindByDocumentNumber finds by billing document number for a tenant
func (r *GormReceivableRepository) FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*ledger.Receivable, error) {
	var model models.ReceivableModel
	if err := r.scoped(ctx, tenantID).Where("document_number = ?", documentNumber).First(&model).Error; err != nil {
		return nil, translateError(err, errReceivableNotFound, nil)
	}
	return model.ToDomain(), nil
}

// FindAll lists receivables of a tenant with filtering and paging
func (r *GormReceivableRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter ledger.ReceivableFilter) ([]ledger.Receivable, int64, error) {
	f := filter.Filter.Normalize(ReceivableSortFields, "due_date")

	var total int64
	if err := r.applyFilter(r.scoped(ctx, tenantID), filter).Count(&total).Error; err != nil {
		return nil, 0, translateError(err, nil, nil)
	}

	var rows []models.ReceivableModel
	query := r.applyFilter(r.scoped(ctx, tenantID), filter).
		Order(f.OrderBy + " " + ValidateSortOrder(f.OrderDir)).
		Order("id ASC").
		Offset(f.Offset()).
		Limit(f.PageSize)
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, translateError(err, nil, nil)
	}
	return receivablesToDomain(rows), total, nil
}

// ListAll returns every receivable of a tenant
func (r *GormReceivableRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.Receivable, error) {
	var rows []models.ReceivableModel
	if err := r.scoped(ctx, tenantID).Order("due_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, nil, nil)
	}
	return receivablesToDomain(rows), nil
}

// ExistsByDocumentNumber checks document number uniqueness within a tenant
func (r *GormReceivableRepository) ExistsByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (bool, error) {
	var count int64
	if err := r.scoped(ctx, tenantID).Where("document_number = ?", documentNumber).Count(&count).Error; err != nil {
		return false, translateError(err, nil, nil)
	}
	return count > 0, nil
}

// SaveWithLock saves with optimistic locking: the row is only updated when
// its stored version is receivable.Version-1
func (r *GormReceivableRepository) SaveWithLock(ctx context.Context, receivable *ledger.Receivable) error {
	model := models.ReceivableModelFromDomain(receivable)
	result := r.scoped(ctx, receivable.TenantID).
		Where("id = ? AND version = ?", receivable.ID, receivable.Version-1).
		Updates(model.MutableColumns())
	if result.Error != nil {
		return translateError(result.Error, nil, nil)
	}
	if result.RowsAffected == 0 {
		return errStaleReceivable
	}
	return nil
}

// applyFilter applies the receivable filter's conditions without paging
func (r *GormReceivableRepository) applyFilter(query *gorm.DB, filter ledger.ReceivableFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.PayerID != nil {
		query = query.Where("payer_id = ?", *filter.PayerID)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", ledger.TruncateToDay(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", ledger.TruncateToDay(*filter.DueTo))
	}
	if filter.OverdueAsOf != nil {
		query = query.Where("status <> ? AND due_date < ?",
			string(ledger.StatusLiquidated), ledger.TruncateToDay(*filter.OverdueAsOf))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(document_number) LIKE ? OR LOWER(payer_name) LIKE ?)", like, like)
	}
	return query
}

func receivablesToDomain(rows []models.ReceivableModel) []ledger.Receivable {
	out := make([]ledger.Receivable, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormReceivableRepository implements ledger.ReceivableRepository
var _ ledger.ReceivableRepository = (*GormReceivableRepository)(nil)
