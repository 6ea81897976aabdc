package dto

import (
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// CreateReceivableRequest issues a new receivable. The decimal and iso_date
// tags are registered by middleware.SetupValidator.
type CreateReceivableRequest struct {
	DocumentNumber string `json:"document_number" binding:"required,max=64"`
	PayerID        string `json:"payer_id" binding:"required,uuid"`
	PayerName      string `json:"payer_name" binding:"required,max=200"`
	Description    string `json:"description" binding:"max=500"`
	FaceValue      string `json:"face_value" binding:"required,decimal"`
	Currency       string `json:"currency" binding:"omitempty,len=3"`
	DueDate        string `json:"due_date" binding:"required,iso_date"`
}

// RecordPaymentRequest posts a payment, or previews it when sent to the preview route.
// ExpectedVersion turns the call into a confirmation of an earlier preview.
type RecordPaymentRequest struct {
	Amount          string `json:"amount" binding:"required,decimal"`
	PaymentDate     string `json:"payment_date" binding:"required,iso_date"`
	Method          string `json:"method" binding:"required"`
	ProofRef        string `json:"proof_ref" binding:"max=255"`
	Observation     string `json:"observation" binding:"max=1000"`
	ExpectedVersion *int   `json:"expected_version" binding:"omitempty,min=1"`
}

// NoteRequest annotates a receivable
type NoteRequest struct {
	Text          string `json:"text" binding:"required,max=2000"`
	AttachmentRef string `json:"attachment_ref" binding:"max=256"`
}

// ReconcileRequest selects one receivable, or the whole tenant when ReceivableID is empty
type ReconcileRequest struct {
	ReceivableID string `json:"receivable_id" binding:"omitempty,uuid"`
	Repair       bool   `json:"repair"`
}

// ListReceivablesRequest are the query parameters of the receivable list
type ListReceivablesRequest struct {
	ListRequest
	Status      string `form:"status" binding:"omitempty,oneof=OPEN PARTIAL LIQUIDATED open partial liquidated"`
	PayerID     string `form:"payer_id" binding:"omitempty,uuid"`
	DueFrom     string `form:"due_from" binding:"omitempty,iso_date"`
	DueTo       string `form:"due_to" binding:"omitempty,iso_date"`
	OverdueAsOf string `form:"overdue_as_of" binding:"omitempty,iso_date"`
}

// ListHistoryRequest are the query parameters of audit trail reads
type ListHistoryRequest struct {
	ListRequest
	Type string `form:"type"`
}

// ReceivableResponse is the wire shape of a receivable
type ReceivableResponse struct {
	ID             uuid.UUID     `json:"id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	DocumentNumber string        `json:"document_number"`
	PayerID        uuid.UUID     `json:"payer_id"`
	PayerName      string        `json:"payer_name"`
	Description    string        `json:"description,omitempty"`
	Currency       string        `json:"currency"`
	FaceValue      string        `json:"face_value"`
	PaidAmount     string        `json:"paid_amount"`
	OpenAmount     string        `json:"open_amount"`
	OverpaidAmount string        `json:"overpaid_amount"`
	DueDate        string        `json:"due_date"`
	Status         ledger.Status `json:"status"`
	PaymentDate    *string       `json:"payment_date,omitempty"`
	SettlementDate *string       `json:"settlement_date,omitempty"`
	Overdue        bool          `json:"overdue"`
	DaysOverdue    int           `json:"days_overdue"`
	Version        int           `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PaymentResponse is the wire shape of a payment event
type PaymentResponse struct {
	ID             uuid.UUID            `json:"id"`
	ReceivableID   uuid.UUID            `json:"receivable_id"`
	Amount         string               `json:"amount"`
	AppliedAmount  string               `json:"applied_amount"`
	OverpaidAmount string               `json:"overpaid_amount"`
	Currency       string               `json:"currency"`
	PaymentDate    string               `json:"payment_date"`
	Method         ledger.PaymentMethod `json:"method"`
	ProofRef       string               `json:"proof_ref,omitempty"`
	Observation    string               `json:"observation,omitempty"`
	IdempotencyKey *string              `json:"idempotency_key,omitempty"`
	RecordedBy     uuid.UUID            `json:"recorded_by"`
	RecordedAt     time.Time            `json:"recorded_at"`
}

// SettlementResponse is the wire shape of a settlement outcome
type SettlementResponse struct {
	Amount         string        `json:"amount"`
	AppliedAmount  string        `json:"applied_amount"`
	OverpaidAmount string        `json:"overpaid_amount"`
	NewPaid        string        `json:"new_paid"`
	NewOpen        string        `json:"new_open"`
	PreviousStatus ledger.Status `json:"previous_status"`
	NewStatus      ledger.Status `json:"new_status"`
	SettledNow     bool          `json:"settled_now"`
	SettlementDate *string       `json:"settlement_date,omitempty"`
}

// HistoryEntryResponse is the wire shape of an audit trail entry
type HistoryEntryResponse struct {
	ID            uuid.UUID          `json:"id"`
	ReceivableID  uuid.UUID          `json:"receivable_id"`
	Type          ledger.HistoryType `json:"type"`
	Summary       string             `json:"summary"`
	Amount        *string            `json:"amount,omitempty"`
	PaymentID     *uuid.UUID         `json:"payment_id,omitempty"`
	Actor         uuid.UUID          `json:"actor"`
	OccurredAt    time.Time          `json:"occurred_at"`
	AttachmentRef string             `json:"attachment_ref,omitempty"`
	Details       any                `json:"details,omitempty"`
}

// RecordPaymentResponse is the result of a recorded or replayed payment
type RecordPaymentResponse struct {
	Receivable ReceivableResponse `json:"receivable"`
	Payment    PaymentResponse    `json:"payment"`
	Settlement SettlementResponse `json:"settlement"`
	Replayed   bool               `json:"replayed"`
	Attempts   int                `json:"attempts"`
}

// PaymentPreviewResponse is the side-effect-free outcome of a payment
type PaymentPreviewResponse struct {
	Receivable      ReceivableResponse   `json:"receivable"`
	Method          ledger.PaymentMethod `json:"method"`
	Settlement      SettlementResponse   `json:"settlement"`
	ExpectedVersion int                  `json:"expected_version"`
}

// Money renders an amount with two decimal places
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// ToReceivableResponse maps a receivable; overdue fields are evaluated at now
func ToReceivableResponse(r *ledger.Receivable, now time.Time) ReceivableResponse {
	overdue := r.IsOverdue(now)
	days := 0
	if overdue {
		days = r.DaysOverdue(now)
	}
	return ReceivableResponse{
		ID:             r.ID,
		TenantID:       r.TenantID,
		DocumentNumber: r.DocumentNumber,
		PayerID:        r.PayerID,
		PayerName:      r.PayerName,
		Description:    r.Description,
		Currency:       string(r.Currency),
		FaceValue:      Money(r.FaceValue),
		PaidAmount:     Money(r.PaidAmount),
		OpenAmount:     Money(r.OpenAmount),
		OverpaidAmount: Money(r.OverpaidAmount),
		DueDate:        r.DueDate.Format(DateLayout),
		Status:         r.Status,
		PaymentDate:    datePtr(r.PaymentDate),
		SettlementDate: datePtr(r.SettlementDate),
		Overdue:        overdue,
		DaysOverdue:    days,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ToReceivableResponses maps a slice of receivables
func ToReceivableResponses(rs []ledger.Receivable, now time.Time) []ReceivableResponse {
	out := make([]ReceivableResponse, len(rs))
	for i := range rs {
		out[i] = ToReceivableResponse(&rs[i], now)
	}
	return out
}

// ToPaymentResponse maps a payment event
func ToPaymentResponse(e *ledger.PaymentEvent) PaymentResponse {
	return PaymentResponse{
		ID:             e.ID,
		ReceivableID:   e.ReceivableID,
		Amount:         Money(e.Amount),
		AppliedAmount:  Money(e.AppliedAmount),
		OverpaidAmount: Money(e.OverpaidAmount),
		Currency:       string(e.Currency),
		PaymentDate:    e.PaymentDate.Format(DateLayout),
		Method:         e.Method,
		ProofRef:       e.ProofRef,
		Observation:    e.Observation,
		IdempotencyKey: e.IdempotencyKey,
		RecordedBy:     e.RecordedBy,
		RecordedAt:     e.CreatedAt,
	}
}

// ToPaymentResponses maps a slice of payment events
func ToPaymentResponses(es []ledger.PaymentEvent) []PaymentResponse {
	out := make([]PaymentResponse, len(es))
	for i := range es {
		out[i] = ToPaymentResponse(&es[i])
	}
	return out
}

// ToSettlementResponse maps a settlement result
func ToSettlementResponse(s ledger.SettlementResult) SettlementResponse {
	return SettlementResponse{
		Amount:         Money(s.Amount),
		AppliedAmount:  Money(s.AppliedAmount),
		OverpaidAmount: Money(s.OverpaidAmount),
		NewPaid:        Money(s.NewPaid),
		NewOpen:        Money(s.NewOpen),
		PreviousStatus: s.PreviousStatus,
		NewStatus:      s.NewStatus,
		SettledNow:     s.SettledNow,
		SettlementDate: datePtr(s.SettlementDate),
	}
}

// ToHistoryEntryResponse maps an audit trail entry
func ToHistoryEntryResponse(h *ledger.HistoryEntry) HistoryEntryResponse {
	resp := HistoryEntryResponse{
		ID:            h.ID,
		ReceivableID:  h.ReceivableID,
		Type:          h.Type,
		Summary:       h.Summary,
		PaymentID:     h.PaymentID,
		Actor:         h.Actor,
		OccurredAt:    h.OccurredAt,
		AttachmentRef: h.AttachmentRef,
	}
	if h.Amount != nil {
		s := Money(*h.Amount)
		resp.Amount = &s
	}
	if h.Details != nil {
		resp.Details = h.Details
	}
	return resp
}

// ToHistoryEntryResponses maps a slice of audit trail entries
func ToHistoryEntryResponses(hs []ledger.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(hs))
	for i := range hs {
		out[i] = ToHistoryEntryResponse(&hs[i])
	}
	return out
}
