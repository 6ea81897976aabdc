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

// Status represents the settlement status of a receivable
type Status string

const (
	StatusOpen       Status = "OPEN"       // Nothing paid yet
	StatusPartial    Status = "PARTIAL"    // 0 < paid, open > tolerance
	StatusLiquidated Status = "LIQUIDATED" // open within tolerance of zero
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusPartial, StatusLiquidated:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// rank orders statuses along the only permitted direction of travel
func (s Status) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusPartial:
		return 1
	case StatusLiquidated:
		return 2
	}
	return -1
}

// ParseStatus parses a status case-insensitively
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown receivable status %q", s))
	}
	return status, nil
}

// DeriveStatus is the deterministic status of a receivable's balances:
// liquidated iff open is within tolerance of zero, else partial iff
// something was paid, else open.
func DeriveStatus(paid, open decimal.Decimal) Status {
	if valueobject.IsNegligible(open) {
		return StatusLiquidated
	}
	if paid.IsPositive() {
		return StatusPartial
	}
	return StatusOpen
}

// Receivable is the aggregate root of the ledger: a claim to future
// payment from a payer, tracked until fully settled. It is never deleted.
type Receivable struct {
	shared.TenantAggregateRoot
	DocumentNumber string
	PayerID        uuid.UUID
	PayerName      string
	Description    string
	Currency       valueobject.Currency
	FaceValue      decimal.Decimal
	PaidAmount     decimal.Decimal
	OpenAmount     decimal.Decimal
	OverpaidAmount decimal.Decimal // Cumulative excess absorbed from overpayments
	DueDate        time.Time
	Status         Status
	PaymentDate    *time.Time // Date of the payment that first liquidated the receivable
	SettlementDate *time.Time
}

// NewReceivableInput carries the fields the billing process supplies
type NewReceivableInput struct {
	DocumentNumber string
	PayerID        uuid.UUID
	PayerName      string
	Description    string
	FaceValue      decimal.Decimal
	Currency       valueobject.Currency
	DueDate        time.Time
}

// NewReceivable creates an open receivable with its full face value outstanding
func NewReceivable(actor shared.Actor, in NewReceivableInput) (*Receivable, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	doc := strings.TrimSpace(in.DocumentNumber)
	if doc == "" {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_NUMBER", "Document number cannot be empty")
	}
	if len(doc) > 64 {
		return nil, shared.NewValidationError("INVALID_DOCUMENT_NUMBER", "Document number cannot exceed 64 characters")
	}
	if in.PayerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PAYER", "Payer ID cannot be empty")
	}
	face := valueobject.Normalize(in.FaceValue)
	if !face.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Face value must be positive")
	}
	if valueobject.ExceedsMax(face) {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Face value exceeds the maximum of "+valueobject.MaxAmount.StringFixed(2))
	}
	if in.DueDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date is required")
	}
	cur := in.Currency
	if cur == "" {
		cur = valueobject.DefaultCurrency
	}

	return &Receivable{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(actor),
		DocumentNumber:      doc,
		PayerID:             in.PayerID,
		PayerName:           strings.TrimSpace(in.PayerName),
		Description:         in.Description,
		Currency:            cur,
		FaceValue:           face,
		PaidAmount:          decimal.Zero,
		OpenAmount:          face,
		OverpaidAmount:      decimal.Zero,
		DueDate:             TruncateToDay(in.DueDate),
		Status:              StatusOpen,
	}, nil
}

// IsLiquidated reports whether the open balance reached zero
func (r *Receivable) IsLiquidated() bool {
	return r.Status == StatusLiquidated
}

// IsOverdue reports whether the receivable is unsettled and its due date
// lies before now's calendar day
func (r *Receivable) IsOverdue(now time.Time) bool {
	return !r.IsLiquidated() && r.DaysOverdue(now) >= 1
}

// DaysOverdue returns the whole days between the due date and now's
// calendar day. Zero or negative means not yet due.
func (r *Receivable) DaysOverdue(now time.Time) int {
	return DaysBetween(r.DueDate, now)
}

// IsPunctual reports whether a liquidated receivable settled on or before its due date
func (r *Receivable) IsPunctual() bool {
	if !r.IsLiquidated() || r.SettlementDate == nil {
		return false
	}
	return !TruncateToDay(*r.SettlementDate).After(r.DueDate)
}

// SettlementDays returns settlement date minus due date in days;
// negative for early settlement. ok is false until liquidated.
func (r *Receivable) SettlementDays() (days int, ok bool) {
	if !r.IsLiquidated() || r.SettlementDate == nil {
		return 0, false
	}
	return DaysBetween(r.DueDate, *r.SettlementDate), true
}

// CheckInvariants verifies paid + open == face, open >= 0 and that status
// matches the balances
func (r *Receivable) CheckInvariants() error {
	if r.OpenAmount.IsNegative() {
		return fmt.Errorf("receivable %s: open amount %s is negative", r.ID, r.OpenAmount)
	}
	if !valueobject.NearlyEqual(r.PaidAmount.Add(r.OpenAmount), r.FaceValue) {
		return fmt.Errorf("receivable %s: paid %s + open %s != face %s", r.ID, r.PaidAmount, r.OpenAmount, r.FaceValue)
	}
	if derived := DeriveStatus(r.PaidAmount, r.OpenAmount); derived != r.Status {
		return fmt.Errorf("receivable %s: status %s does not match balances (%s)", r.ID, r.Status, derived)
	}
	return nil
}

// ApplySettlement writes a state machine result onto the aggregate.
// The result must have been computed from this receivable's current state.
func (r *Receivable) ApplySettlement(result SettlementResult, actorID uuid.UUID) {
	r.PaidAmount = result.NewPaid
	r.OpenAmount = result.NewOpen
	r.OverpaidAmount = r.OverpaidAmount.Add(result.OverpaidAmount)
	r.Status = result.NewStatus
	if result.SettlementDate != nil && r.SettlementDate == nil {
		d := *result.SettlementDate
		r.SettlementDate = &d
		p := d
		r.PaymentDate = &p
	}
	r.MarkUpdated(actorID)
}

// Rebalance overwrites the balances with values re-derived from the
// payment ledger. It is used by reconciliation only.
func (r *Receivable) Rebalance(paid, overpaid decimal.Decimal, settlementDate *time.Time, actorID uuid.UUID) {
	r.PaidAmount = paid
	r.OpenAmount = decimal.Max(decimal.Zero, r.FaceValue.Sub(paid))
	r.OverpaidAmount = overpaid
	r.Status = DeriveStatus(r.PaidAmount, r.OpenAmount)
	if r.Status == StatusLiquidated {
		if r.SettlementDate == nil && settlementDate != nil {
			d := TruncateToDay(*settlementDate)
			r.SettlementDate = &d
			p := d
			r.PaymentDate = &p
		}
	} else {
		r.SettlementDate = nil
		r.PaymentDate = nil
	}
	r.MarkUpdated(actorID)
}

// TruncateToDay returns midnight UTC of t's calendar day in UTC
func TruncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(TruncateToDay(b).Sub(TruncateToDay(a)).Hours() / 24)
}
