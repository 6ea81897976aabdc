package persistence

import (
	"context"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
	"github.com/erp/receivables/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHistoryRepository implements ledger.HistoryRepository using GORM.
// The audit trail is write-once: entries are inserted and read, never
// updated or deleted.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new GormHistoryRepository
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

func (r *GormHistoryRepository) scoped(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.HistoryEntryModel{}).Scopes(tenant.Scope(tenantID))
}

// Append inserts entries in one statement
func (r *GormHistoryRepository) Append(ctx context.Context, entries ...*ledger.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.HistoryEntryModel, 0, len(entries))
	for _, e := range entries {
		m, err := models.HistoryEntryModelFromDomain(e)
		if err != nil {
			return err
		}
		rows = append(rows, m)
	}
	return translateError(r.db.WithContext(ctx).Create(&rows).Error, nil, nil)
}

// FindByReceivable returns a page of a receivable's entries, most recent first
func (r *GormHistoryRepository) FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, int64, error) {
	return r.page(ctx, tenantID, filter, func(q *gorm.DB) *gorm.DB {
		return q.Where("receivable_id = ?", receivableID)
	})
}

// FindByTenant returns a page of entries of all receivables of a tenant, most recent first
func (r *GormHistoryRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, int64, error) {
	return r.page(ctx, tenantID, filter, nil)
}

// ListByReceivable returns every entry of a receivable in the order it was written
func (r *GormHistoryRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]ledger.HistoryEntry, error) {
	var rows []models.HistoryEntryModel
	err := r.scoped(ctx, tenantID).
		Where("receivable_id = ?", receivableID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, nil, nil)
	}
	return historyToDomain(rows)
}

// ListAll returns every entry of a tenant in the order it was written
func (r *GormHistoryRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.HistoryEntry, error) {
	var rows []models.HistoryEntryModel
	if err := r.scoped(ctx, tenantID).Order("occurred_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, nil, nil)
	}
	return historyToDomain(rows)
}

func (r *GormHistoryRepository) page(ctx context.Context, tenantID uuid.UUID, filter ledger.HistoryFilter, extra func(*gorm.DB) *gorm.DB) ([]ledger.HistoryEntry, int64, error) {
	f := filter.Filter.Normalize(HistorySortFields, "occurred_at")
	build := func() *gorm.DB {
		q := r.scoped(ctx, tenantID)
		if extra != nil {
			q = extra(q)
		}
		if filter.Type != nil {
			q = q.Where("type = ?", string(*filter.Type))
		}
		return q
	}

	var total int64
	if err := build().Count(&total).Error; err != nil {
		return nil, 0, translateError(err, nil, nil)
	}

	var rows []models.HistoryEntryModel
	err := build().
		Order(f.OrderBy + " " + ValidateSortOrder(f.OrderDir)).
		Order("id DESC").
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, translateError(err, nil, nil)
	}
	entries, err := historyToDomain(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func historyToDomain(rows []models.HistoryEntryModel) ([]ledger.HistoryEntry, error) {
	out := make([]ledger.HistoryEntry, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out[i] = *e
	}
	return out, nil
}

// Ensure GormHistoryRepository implements ledger.HistoryRepository
var _ ledger.HistoryRepository = (*GormHistoryRepository)(nil)
