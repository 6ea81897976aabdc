package ledger

import (
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SettlementResult is the outcome of applying a payment to a receivable
type SettlementResult struct {
	Amount         decimal.Decimal // Normalised payment amount
	AppliedAmount  decimal.Decimal // Portion that reduced the open balance
	OverpaidAmount decimal.Decimal // Excess above the open balance, absorbed
	NewPaid        decimal.Decimal
	NewOpen        decimal.Decimal
	PreviousStatus Status
	NewStatus      Status
	SettledNow     bool
	SettlementDate *time.Time // Set only when this payment first liquidates the receivable
}

// StatusChanged reports whether the payment moves the receivable to another status
func (s SettlementResult) StatusChanged() bool {
	return s.PreviousStatus != s.NewStatus
}

// ApplyPayment is the settlement state machine. It does not modify r.
//
// The amount is normalised to two places before use. Paid grows by the
// applied portion only, so paid + open == face holds for every record;
// anything beyond the open balance is reported as OverpaidAmount.
// A payment on a liquidated receivable is accepted as fully overpaid.
func ApplyPayment(r *Receivable, amount decimal.Decimal, paymentDate time.Time) (SettlementResult, error) {
	amt := valueobject.Normalize(amount)
	if !amt.IsPositive() {
		return SettlementResult{}, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if valueobject.ExceedsMax(amt) {
		return SettlementResult{}, shared.NewValidationError("INVALID_AMOUNT", "Payment amount exceeds the maximum of "+valueobject.MaxAmount.StringFixed(2))
	}
	if paymentDate.IsZero() {
		return SettlementResult{}, shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date is required")
	}

	applied := decimal.Min(amt, r.OpenAmount)
	if applied.IsNegative() {
		applied = decimal.Zero
	}
	newOpen := decimal.Max(decimal.Zero, r.OpenAmount.Sub(amt))
	newStatus := StatusPartial
	if valueobject.IsNegligible(newOpen) {
		newStatus = StatusLiquidated
		newOpen = decimal.Zero
	}
	// never move backwards
	if newStatus.rank() < r.Status.rank() {
		newStatus = r.Status
	}

	overpaid := amt.Sub(applied)
	if valueobject.ExceedsMax(r.OverpaidAmount.Add(overpaid)) {
		return SettlementResult{}, shared.NewValidationError("INVALID_AMOUNT", "Payment would push the overpaid balance past the maximum of "+valueobject.MaxAmount.StringFixed(2))
	}

	result := SettlementResult{
		Amount:         amt,
		AppliedAmount:  applied,
		OverpaidAmount: overpaid,
		NewPaid:        r.PaidAmount.Add(applied),
		NewOpen:        newOpen,
		PreviousStatus: r.Status,
		NewStatus:      newStatus,
	}
	if newStatus == StatusLiquidated && r.Status != StatusLiquidated {
		result.SettledNow = true
		if r.SettlementDate == nil {
			d := TruncateToDay(paymentDate)
			result.SettlementDate = &d
		}
	}
	return result, nil
}
