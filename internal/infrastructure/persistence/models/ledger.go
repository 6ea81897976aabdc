package models

import (
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceivableModel is the persistence model for the Receivable aggregate
type ReceivableModel struct {
	AggregateModel
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_receivable_tenant_document,priority:1"`
	DocumentNumber string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_receivable_tenant_document,priority:2"`
	PayerID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	PayerName      string          `gorm:"type:varchar(200);not null;default:''"`
	Description    string          `gorm:"type:text"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'BRL'"`
	FaceValue      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OpenAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OverpaidAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DueDate        time.Time       `gorm:"not null;index"`
	Status         string          `gorm:"type:varchar(20);not null;default:'OPEN';index"`
	PaymentDate    *time.Time
	SettlementDate *time.Time
}

// TableName returns the table name for GORM
func (ReceivableModel) TableName() string {
	return "receivables"
}

// ToDomain converts the persistence model to a domain Receivable
func (m *ReceivableModel) ToDomain() *ledger.Receivable {
	return &ledger.Receivable{
		TenantAggregateRoot: m.AggregateModel.TenantAggregateRoot(m.TenantID),
		DocumentNumber:      m.DocumentNumber,
		PayerID:             m.PayerID,
		PayerName:           m.PayerName,
		Description:         m.Description,
		Currency:            valueobject.Currency(m.Currency),
		FaceValue:           m.FaceValue,
		PaidAmount:          m.PaidAmount,
		OpenAmount:          m.OpenAmount,
		OverpaidAmount:      m.OverpaidAmount,
		DueDate:             m.DueDate.UTC(),
		Status:              ledger.Status(m.Status),
		PaymentDate:         utcPtr(m.PaymentDate),
		SettlementDate:      utcPtr(m.SettlementDate),
	}
}

// FromDomain populates the persistence model from a domain Receivable
func (m *ReceivableModel) FromDomain(r *ledger.Receivable) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.TenantID = r.TenantID
	m.DocumentNumber = r.DocumentNumber
	m.PayerID = r.PayerID
	m.PayerName = r.PayerName
	m.Description = r.Description
	m.Currency = string(r.Currency)
	m.FaceValue = r.FaceValue
	m.PaidAmount = r.PaidAmount
	m.OpenAmount = r.OpenAmount
	m.OverpaidAmount = r.OverpaidAmount
	m.DueDate = r.DueDate
	m.Status = string(r.Status)
	m.PaymentDate = r.PaymentDate
	m.SettlementDate = r.SettlementDate
}

// ReceivableModelFromDomain creates a new persistence model from a domain Receivable
func ReceivableModelFromDomain(r *ledger.Receivable) *ReceivableModel {
	m := &ReceivableModel{}
	m.FromDomain(r)
	return m
}

// MutableColumns returns the columns a versioned save may change. Identity,
// tenant, document, payer and face value are fixed at creation.
func (m *ReceivableModel) MutableColumns() map[string]any {
	return map[string]any{
		"paid_amount":     m.PaidAmount,
		"open_amount":     m.OpenAmount,
		"overpaid_amount": m.OverpaidAmount,
		"status":          m.Status,
		"payment_date":    m.PaymentDate,
		"settlement_date": m.SettlementDate,
		"description":     m.Description,
		"version":         m.Version,
		"updated_by":      m.UpdatedBy,
		"updated_at":      m.UpdatedAt,
	}
}

// PaymentEventModel is the persistence model for the append-only payment ledger
type PaymentEventModel struct {
	BaseModel
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_tenant_idempotency,priority:1"`
	ReceivableID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AppliedAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OverpaidAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	PaymentDate    time.Time       `gorm:"not null;index"`
	Method         string          `gorm:"type:varchar(30);not null"`
	ProofRef       string          `gorm:"type:varchar(255)"`
	Observation    string          `gorm:"type:text"`
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex:idx_payment_tenant_idempotency,priority:2"`
	RecordedBy     uuid.UUID       `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (PaymentEventModel) TableName() string {
	return "payment_events"
}

// ToDomain converts the persistence model to a domain PaymentEvent
func (m *PaymentEventModel) ToDomain() *ledger.PaymentEvent {
	return &ledger.PaymentEvent{
		BaseEntity:     m.BaseModel.ToDomain(),
		TenantID:       m.TenantID,
		ReceivableID:   m.ReceivableID,
		Amount:         m.Amount,
		AppliedAmount:  m.AppliedAmount,
		OverpaidAmount: m.OverpaidAmount,
		Currency:       valueobject.Currency(m.Currency),
		PaymentDate:    m.PaymentDate.UTC(),
		Method:         ledger.PaymentMethod(m.Method),
		ProofRef:       m.ProofRef,
		Observation:    m.Observation,
		IdempotencyKey: m.IdempotencyKey,
		RecordedBy:     m.RecordedBy,
	}
}

// PaymentEventModelFromDomain creates a new persistence model from a domain PaymentEvent
func PaymentEventModelFromDomain(e *ledger.PaymentEvent) *PaymentEventModel {
	m := &PaymentEventModel{
		TenantID:       e.TenantID,
		ReceivableID:   e.ReceivableID,
		Amount:         e.Amount,
		AppliedAmount:  e.AppliedAmount,
		OverpaidAmount: e.OverpaidAmount,
		Currency:       string(e.Currency),
		PaymentDate:    e.PaymentDate,
		Method:         string(e.Method),
		ProofRef:       e.ProofRef,
		Observation:    e.Observation,
		IdempotencyKey: e.IdempotencyKey,
		RecordedBy:     e.RecordedBy,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}

// HistoryEntryModel is one write-once row of the audit trail. Details holds
// the JSON payload of the entry's variant.
type HistoryEntryModel struct {
	ID            uuid.UUID        `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_history_tenant_occurred,priority:1"`
	ReceivableID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type          string           `gorm:"type:varchar(20);not null;index"`
	Summary       string           `gorm:"type:varchar(200);not null"`
	Amount        *decimal.Decimal `gorm:"type:decimal(18,2)"`
	PaymentID     *uuid.UUID       `gorm:"type:uuid;index"`
	Actor         uuid.UUID        `gorm:"type:uuid;not null"`
	OccurredAt    time.Time        `gorm:"not null;index:idx_history_tenant_occurred,priority:2"`
	AttachmentRef string           `gorm:"type:varchar(255)"`
	Details       string           `gorm:"type:jsonb;not null"`
}

// TableName returns the table name for GORM
func (HistoryEntryModel) TableName() string {
	return "history_entries"
}

// ToDomain converts the persistence model to a domain HistoryEntry
func (m *HistoryEntryModel) ToDomain() (*ledger.HistoryEntry, error) {
	t := ledger.HistoryType(m.Type)
	details, err := ledger.UnmarshalHistoryDetails(t, []byte(m.Details))
	if err != nil {
		return nil, fmt.Errorf("history entry %s: %w", m.ID, err)
	}
	return &ledger.HistoryEntry{
		ID:            m.ID,
		TenantID:      m.TenantID,
		ReceivableID:  m.ReceivableID,
		Type:          t,
		Summary:       m.Summary,
		Amount:        m.Amount,
		PaymentID:     m.PaymentID,
		Actor:         m.Actor,
		OccurredAt:    m.OccurredAt.UTC(),
		AttachmentRef: m.AttachmentRef,
		Details:       details,
	}, nil
}

// HistoryEntryModelFromDomain creates a new persistence model from a domain HistoryEntry
func HistoryEntryModelFromDomain(h *ledger.HistoryEntry) (*HistoryEntryModel, error) {
	details, err := ledger.MarshalHistoryDetails(h.Details)
	if err != nil {
		return nil, fmt.Errorf("history entry %s: %w", h.ID, err)
	}
	return &HistoryEntryModel{
		ID:            h.ID,
		TenantID:      h.TenantID,
		ReceivableID:  h.ReceivableID,
		Type:          string(h.Type),
		Summary:       h.Summary,
		Amount:        h.Amount,
		PaymentID:     h.PaymentID,
		Actor:         h.Actor,
		OccurredAt:    h.OccurredAt,
		AttachmentRef: h.AttachmentRef,
		Details:       string(details),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
