package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the cash arrived
type PaymentMethod string

const (
	MethodInstantTransfer PaymentMethod = "INSTANT_TRANSFER"
	MethodBankSlip        PaymentMethod = "BANK_SLIP"
	MethodWireTransfer    PaymentMethod = "WIRE_TRANSFER"
	MethodGovernmentNote  PaymentMethod = "GOVERNMENT_NOTE"
	MethodOther           PaymentMethod = "OTHER"
)

// AllPaymentMethods lists every accepted method
var AllPaymentMethods = []PaymentMethod{
	MethodInstantTransfer, MethodBankSlip, MethodWireTransfer, MethodGovernmentNote, MethodOther,
}

// IsValid checks if the method is a known PaymentMethod
func (m PaymentMethod) IsValid() bool {
	for _, v := range AllPaymentMethods {
		if m == v {
			return true
		}
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// ParsePaymentMethod accepts "INSTANT_TRANSFER" as well as "instant-transfer"
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !m.IsValid() {
		return "", shared.NewValidationError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", s))
	}
	return m, nil
}

// PaymentEvent is an immutable cash movement against a receivable.
// Amount = AppliedAmount + OverpaidAmount.
type PaymentEvent struct {
	shared.BaseEntity
	TenantID       uuid.UUID
	ReceivableID   uuid.UUID
	Amount         decimal.Decimal
	AppliedAmount  decimal.Decimal
	OverpaidAmount decimal.Decimal
	Currency       valueobject.Currency
	PaymentDate    time.Time
	Method         PaymentMethod
	ProofRef       string
	Observation    string
	IdempotencyKey *string
	RecordedBy     uuid.UUID
}

// PaymentDetailsInput carries the caller-supplied payment fields
type PaymentDetailsInput struct {
	Method         PaymentMethod
	ProofRef       string
	Observation    string
	IdempotencyKey string
}

// MaxIdempotencyKeyLength is the width of the idempotency_key column
const MaxIdempotencyKeyLength = 128

// NormalizeIdempotencyKey trims a caller-supplied key; an empty result means no key
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) > MaxIdempotencyKeyLength {
		return "", shared.NewValidationError("INVALID_IDEMPOTENCY_KEY",
			fmt.Sprintf("Idempotency key cannot exceed %d characters", MaxIdempotencyKeyLength))
	}
	return key, nil
}

// NewPaymentEvent creates the ledger entry for a settlement result
func NewPaymentEvent(actor shared.Actor, r *Receivable, result SettlementResult, paymentDate time.Time, in PaymentDetailsInput) (*PaymentEvent, error) {
	if !in.Method.IsValid() {
		return nil, shared.NewValidationError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", in.Method))
	}
	if len(in.ProofRef) > 255 {
		return nil, shared.NewValidationError("INVALID_PROOF_REF", "Proof reference cannot exceed 255 characters")
	}
	e := &PaymentEvent{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       actor.TenantID,
		ReceivableID:   r.ID,
		Amount:         result.Amount,
		AppliedAmount:  result.AppliedAmount,
		OverpaidAmount: result.OverpaidAmount,
		Currency:       r.Currency,
		PaymentDate:    TruncateToDay(paymentDate),
		Method:         in.Method,
		ProofRef:       strings.TrimSpace(in.ProofRef),
		Observation:    in.Observation,
		RecordedBy:     actor.UserID,
	}
	key, err := NormalizeIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if key != "" {
		e.IdempotencyKey = &key
	}
	return e, nil
}

// Matches reports whether a replayed request carries the same payload
// as the event recorded under its idempotency key
func (e *PaymentEvent) Matches(receivableID uuid.UUID, amount decimal.Decimal) bool {
	return e.ReceivableID == receivableID && e.Amount.Equal(valueobject.Normalize(amount))
}
