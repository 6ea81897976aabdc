package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscrepancyKind classifies a ledger inconsistency
type DiscrepancyKind string

const (
	DiscrepancyBalance        DiscrepancyKind = "BALANCE_MISMATCH"
	DiscrepancyOverpaid       DiscrepancyKind = "OVERPAID_MISMATCH"
	DiscrepancyStatus         DiscrepancyKind = "STATUS_MISMATCH"
	DiscrepancyMissingHistory DiscrepancyKind = "MISSING_HISTORY"
	DiscrepancyOrphanHistory  DiscrepancyKind = "ORPHAN_HISTORY"
)

// Discrepancy is one finding of a ledger check
type Discrepancy struct {
	Kind         DiscrepancyKind `json:"kind"`
	ReceivableID uuid.UUID       `json:"receivable_id"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	Expected     string          `json:"expected,omitempty"`
	Actual       string          `json:"actual,omitempty"`
	Detail       string          `json:"detail"`
}

// LedgerCheck is the result of comparing a receivable with its payment
// ledger and audit trail
type LedgerCheck struct {
	ReceivableID   uuid.UUID
	LedgerPaid     decimal.Decimal
	LedgerOverpaid decimal.Decimal
	SettlementDate *time.Time
	MissingHistory []PaymentEvent
	Discrepancies  []Discrepancy
}

// Consistent reports whether the check found nothing
func (c LedgerCheck) Consistent() bool {
	return len(c.Discrepancies) == 0
}

// NeedsRebalance reports whether stored balances differ from the ledger
func (c LedgerCheck) NeedsRebalance() bool {
	for _, d := range c.Discrepancies {
		switch d.Kind {
		case DiscrepancyBalance, DiscrepancyOverpaid, DiscrepancyStatus:
			return true
		}
	}
	return false
}

// CheckLedger re-derives r's balances from payments (which must all belong
// to r) and verifies every payment has a PAYMENT history entry
func CheckLedger(r *Receivable, payments []PaymentEvent, history []HistoryEntry) LedgerCheck {
	sorted := make([]PaymentEvent, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PaymentDate.Equal(sorted[j].PaymentDate) {
			return sorted[i].PaymentDate.Before(sorted[j].PaymentDate)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	check := LedgerCheck{ReceivableID: r.ID}
	total := decimal.Zero
	for i := range sorted {
		total = total.Add(sorted[i].Amount)
		if check.SettlementDate == nil && total.GreaterThanOrEqual(r.FaceValue.Sub(valueobject.Tolerance)) {
			d := TruncateToDay(sorted[i].PaymentDate)
			check.SettlementDate = &d
		}
	}
	check.LedgerPaid = decimal.Min(total, r.FaceValue)
	check.LedgerOverpaid = total.Sub(check.LedgerPaid)

	add := func(kind DiscrepancyKind, paymentID *uuid.UUID, expected, actual, detail string) {
		check.Discrepancies = append(check.Discrepancies, Discrepancy{
			Kind: kind, ReceivableID: r.ID, PaymentID: paymentID,
			Expected: expected, Actual: actual, Detail: detail,
		})
	}

	if !valueobject.NearlyEqual(check.LedgerPaid, r.PaidAmount) {
		add(DiscrepancyBalance, nil, check.LedgerPaid.StringFixed(valueobject.Scale), r.PaidAmount.StringFixed(valueobject.Scale),
			"paid amount differs from payment ledger total")
	} else if !valueobject.NearlyEqual(r.PaidAmount.Add(r.OpenAmount), r.FaceValue) || r.OpenAmount.IsNegative() {
		add(DiscrepancyBalance, nil, r.FaceValue.StringFixed(valueobject.Scale), r.PaidAmount.Add(r.OpenAmount).StringFixed(valueobject.Scale),
			"paid plus open does not equal face value")
	}
	if !valueobject.NearlyEqual(check.LedgerOverpaid, r.OverpaidAmount) {
		add(DiscrepancyOverpaid, nil, check.LedgerOverpaid.StringFixed(valueobject.Scale), r.OverpaidAmount.StringFixed(valueobject.Scale),
			"overpaid amount differs from payment ledger excess")
	}
	if derived := DeriveStatus(r.PaidAmount, r.OpenAmount); derived != r.Status {
		add(DiscrepancyStatus, nil, derived.String(), r.Status.String(), "status does not match balances")
	}

	logged := make(map[uuid.UUID]bool)
	for i := range history {
		if history[i].Type == HistoryPayment && history[i].PaymentID != nil {
			logged[*history[i].PaymentID] = true
		}
	}
	known := make(map[uuid.UUID]bool, len(sorted))
	for i := range sorted {
		p := sorted[i]
		known[p.ID] = true
		if !logged[p.ID] {
			id := p.ID
			check.MissingHistory = append(check.MissingHistory, p)
			add(DiscrepancyMissingHistory, &id, "", "", fmt.Sprintf("payment %s has no audit entry", p.ID))
		}
	}
	for i := range history {
		h := history[i]
		if h.Type == HistoryPayment && h.PaymentID != nil && !known[*h.PaymentID] {
			id := *h.PaymentID
			add(DiscrepancyOrphanHistory, &id, "", "", fmt.Sprintf("audit entry %s references unknown payment", h.ID))
		}
	}
	return check
}
