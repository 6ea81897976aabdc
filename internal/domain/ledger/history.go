package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// HistoryType tags the variant carried by a HistoryEntry
type HistoryType string

const (
	HistoryPayment      HistoryType = "PAYMENT"
	HistoryAdjustment   HistoryType = "ADJUSTMENT"
	HistoryStatusChange HistoryType = "STATUS_CHANGE"
	HistoryNote         HistoryType = "NOTE"
)

// IsValid checks if the type is a known HistoryType
func (t HistoryType) IsValid() bool {
	switch t {
	case HistoryPayment, HistoryAdjustment, HistoryStatusChange, HistoryNote:
		return true
	}
	return false
}

// ParseHistoryType parses a history type case-insensitively
func ParseHistoryType(s string) (HistoryType, error) {
	t := HistoryType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !t.IsValid() {
		return "", shared.NewValidationError("INVALID_HISTORY_TYPE", fmt.Sprintf("Unknown history type %q", s))
	}
	return t, nil
}

// summaryLanguage is used to render amounts in summaries
var summaryLanguage = language.English

const maxSummaryLen = 160

// HistoryDetails is the structured payload of one HistoryEntry variant
type HistoryDetails interface {
	HistoryType() HistoryType
}

// PaymentDetails describes a recorded payment
type PaymentDetails struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
	OverpaidAmount decimal.Decimal `json:"overpaid_amount"`
	Method         PaymentMethod   `json:"method"`
	PaymentDate    time.Time       `json:"payment_date"`
	Reconstructed  bool            `json:"reconstructed,omitempty"`
}

func (PaymentDetails) HistoryType() HistoryType { return HistoryPayment }

// StatusChangeDetails describes a status transition
type StatusChangeDetails struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (StatusChangeDetails) HistoryType() HistoryType { return HistoryStatusChange }

// Balance is a snapshot of a receivable's amounts
type Balance struct {
	Paid     decimal.Decimal `json:"paid"`
	Open     decimal.Decimal `json:"open"`
	Overpaid decimal.Decimal `json:"overpaid"`
	Status   Status          `json:"status"`
}

// BalanceOf snapshots r's balances
func BalanceOf(r *Receivable) Balance {
	return Balance{Paid: r.PaidAmount, Open: r.OpenAmount, Overpaid: r.OverpaidAmount, Status: r.Status}
}

// AdjustmentDetails describes a balance correction
type AdjustmentDetails struct {
	Reason string  `json:"reason"`
	Before Balance `json:"before"`
	After  Balance `json:"after"`
}

func (AdjustmentDetails) HistoryType() HistoryType { return HistoryAdjustment }

// NoteDetails is a free-text annotation
type NoteDetails struct {
	Text string `json:"text"`
}

func (NoteDetails) HistoryType() HistoryType { return HistoryNote }

// HistoryEntry is one write-once line of a receivable's audit trail
type HistoryEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ReceivableID  uuid.UUID
	Type          HistoryType
	Summary       string
	Amount        *decimal.Decimal
	PaymentID     *uuid.UUID
	Actor         uuid.UUID
	OccurredAt    time.Time
	AttachmentRef string
	Details       HistoryDetails
}

func newHistoryEntry(actor shared.Actor, receivableID uuid.UUID, details HistoryDetails, summary string, at time.Time) *HistoryEntry {
	return &HistoryEntry{
		ID:           uuid.New(),
		TenantID:     actor.TenantID,
		ReceivableID: receivableID,
		Type:         details.HistoryType(),
		Summary:      truncate(summary, maxSummaryLen),
		Actor:        actor.UserID,
		OccurredAt:   at.UTC(),
		Details:      details,
	}
}

// HistoryTick separates entries written together so they read back in write order
const HistoryTick = time.Microsecond

// InWriteOrder restamps entries written in one transaction so each occurs one
// HistoryTick after the previous, starting at at
func InWriteOrder(at time.Time, entries ...*HistoryEntry) []*HistoryEntry {
	for i, e := range entries {
		e.OccurredAt = at.UTC().Add(time.Duration(i) * HistoryTick)
	}
	return entries
}

// NewPaymentHistory records a payment event in the audit trail
func NewPaymentHistory(actor shared.Actor, r *Receivable, e *PaymentEvent, at time.Time) *HistoryEntry {
	return paymentHistory(actor, r.Currency, e, false, at)
}

// NewReconstructedPaymentHistory fills a gap found by reconciliation for
// a payment whose audit entry is missing
func NewReconstructedPaymentHistory(actor shared.Actor, r *Receivable, e *PaymentEvent, at time.Time) *HistoryEntry {
	return paymentHistory(actor, r.Currency, e, true, at)
}

func paymentHistory(actor shared.Actor, cur valueobject.Currency, e *PaymentEvent, reconstructed bool, at time.Time) *HistoryEntry {
	summary := fmt.Sprintf("Payment of %s received via %s", valueobject.FormatAmount(e.Amount, cur, summaryLanguage), e.Method)
	if e.OverpaidAmount.IsPositive() {
		summary += fmt.Sprintf(" (%s overpaid)", valueobject.FormatAmount(e.OverpaidAmount, cur, summaryLanguage))
	}
	if reconstructed {
		summary = "Reconstructed: " + summary
	}
	h := newHistoryEntry(actor, e.ReceivableID, PaymentDetails{
		PaymentID:      e.ID,
		Amount:         e.Amount,
		AppliedAmount:  e.AppliedAmount,
		OverpaidAmount: e.OverpaidAmount,
		Method:         e.Method,
		PaymentDate:    e.PaymentDate,
		Reconstructed:  reconstructed,
	}, summary, at)
	amount := e.Amount
	paymentID := e.ID
	h.Amount = &amount
	h.PaymentID = &paymentID
	h.AttachmentRef = e.ProofRef
	return h
}

// NewStatusChangeHistory records a status transition
func NewStatusChangeHistory(actor shared.Actor, r *Receivable, from, to Status, at time.Time) *HistoryEntry {
	return newHistoryEntry(actor, r.ID, StatusChangeDetails{From: from, To: to},
		fmt.Sprintf("Status changed from %s to %s", from, to), at)
}

// NewAdjustmentHistory records a balance correction
func NewAdjustmentHistory(actor shared.Actor, r *Receivable, reason string, before, after Balance, at time.Time) *HistoryEntry {
	summary := fmt.Sprintf("Balance adjusted: paid %s -> %s",
		valueobject.FormatAmount(before.Paid, r.Currency, summaryLanguage),
		valueobject.FormatAmount(after.Paid, r.Currency, summaryLanguage))
	if reason != "" {
		summary += " (" + reason + ")"
	}
	h := newHistoryEntry(actor, r.ID, AdjustmentDetails{Reason: reason, Before: before, After: after}, summary, at)
	delta := after.Paid.Sub(before.Paid)
	h.Amount = &delta
	return h
}

// NewNoteHistory records a human annotation with an optional attachment
func NewNoteHistory(actor shared.Actor, r *Receivable, text, attachmentRef string, at time.Time) (*HistoryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.NewValidationError("INVALID_NOTE", "Note text cannot be empty")
	}
	if utf8.RuneCountInString(text) > 2000 {
		return nil, shared.NewValidationError("INVALID_NOTE", "Note text cannot exceed 2000 characters")
	}
	if len(attachmentRef) > 255 {
		return nil, shared.NewValidationError("INVALID_ATTACHMENT_REF", "Attachment reference cannot exceed 255 characters")
	}
	h := newHistoryEntry(actor, r.ID, NoteDetails{Text: text}, text, at)
	h.AttachmentRef = strings.TrimSpace(attachmentRef)
	return h, nil
}

// MarshalHistoryDetails encodes a variant payload for storage
func MarshalHistoryDetails(d HistoryDetails) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalHistoryDetails decodes a stored payload into the variant of t
func UnmarshalHistoryDetails(t HistoryType, data []byte) (HistoryDetails, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var (
		d   HistoryDetails
		err error
	)
	switch t {
	case HistoryPayment:
		var v PaymentDetails
		err = json.Unmarshal(data, &v)
		d = v
	case HistoryStatusChange:
		var v StatusChangeDetails
		err = json.Unmarshal(data, &v)
		d = v
	case HistoryAdjustment:
		var v AdjustmentDetails
		err = json.Unmarshal(data, &v)
		d = v
	case HistoryNote:
		var v NoteDetails
		err = json.Unmarshal(data, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown history type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return d, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
