package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The functions in this file are pure aggregations over tenant snapshots.
// now is always explicit; nothing here reads the clock.

var hundred = decimal.NewFromInt(100)

// Summary holds the headline receivable KPIs of a tenant
type Summary struct {
	AsOf                  time.Time       `json:"as_of"`
	TotalOutstanding      decimal.Decimal `json:"total_outstanding"`
	TotalOverdue          decimal.Decimal `json:"total_overdue"`
	TotalCollected        decimal.Decimal `json:"total_collected"`
	TotalOverpaid         decimal.Decimal `json:"total_overpaid"`
	AverageSettlementDays decimal.Decimal `json:"average_settlement_days"`
	PunctualityPercent    decimal.Decimal `json:"punctuality_percent"`
	OpenCount             int             `json:"open_count"`
	PartialCount          int             `json:"partial_count"`
	LiquidatedCount       int             `json:"liquidated_count"`
	OverdueCount          int             `json:"overdue_count"`
}

// Summarize computes the KPIs over rs at now.
// Punctuality and average settlement days are zero without liquidated receivables.
func Summarize(rs []Receivable, now time.Time) Summary {
	s := Summary{
		AsOf:                  now.UTC(),
		TotalOutstanding:      decimal.Zero,
		TotalOverdue:          decimal.Zero,
		TotalCollected:        decimal.Zero,
		TotalOverpaid:         decimal.Zero,
		AverageSettlementDays: decimal.Zero,
		PunctualityPercent:    decimal.Zero,
	}
	settlementDays := 0
	settledWithDate := 0
	punctual := 0

	for i := range rs {
		r := &rs[i]
		s.TotalOverpaid = s.TotalOverpaid.Add(r.OverpaidAmount)
		switch r.Status {
		case StatusOpen:
			s.OpenCount++
		case StatusPartial:
			s.PartialCount++
		case StatusLiquidated:
			s.LiquidatedCount++
		}
		if r.Status != StatusLiquidated {
			s.TotalOutstanding = s.TotalOutstanding.Add(r.OpenAmount)
		}
		if r.IsOverdue(now) {
			s.TotalOverdue = s.TotalOverdue.Add(r.OpenAmount)
			s.OverdueCount++
		}
		if r.Status == StatusPartial || r.Status == StatusLiquidated {
			s.TotalCollected = s.TotalCollected.Add(r.PaidAmount)
		}
		if days, ok := r.SettlementDays(); ok {
			settlementDays += days
			settledWithDate++
		}
		if r.IsPunctual() {
			punctual++
		}
	}

	if settledWithDate > 0 {
		s.AverageSettlementDays = decimal.NewFromInt(int64(settlementDays)).
			Div(decimal.NewFromInt(int64(settledWithDate))).Round(valueobject.Scale)
	}
	if s.LiquidatedCount > 0 {
		s.PunctualityPercent = decimal.NewFromInt(int64(punctual)).Mul(hundred).
			Div(decimal.NewFromInt(int64(s.LiquidatedCount))).Round(valueobject.Scale)
	}
	s.TotalOutstanding = s.TotalOutstanding.Round(valueobject.Scale)
	s.TotalOverdue = s.TotalOverdue.Round(valueobject.Scale)
	s.TotalCollected = s.TotalCollected.Round(valueobject.Scale)
	s.TotalOverpaid = s.TotalOverpaid.Round(valueobject.Scale)
	return s
}

// MonthlyTotal is the cash received in one calendar month
type MonthlyTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Start time.Time       `json:"start"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

func monthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TrendWindow returns [from, to) covering months calendar months ending
// with now's month
func TrendWindow(now time.Time, months int) (from, to time.Time) {
	current := monthStart(now)
	return current.AddDate(0, -(months - 1), 0), current.AddDate(0, 1, 0)
}

// MonthlyTrend sums payment amounts by calendar month of payment date for
// the trailing window, oldest month first; empty months report zero
func MonthlyTrend(payments []PaymentEvent, now time.Time, months int) ([]MonthlyTotal, error) {
	if months < 1 || months > 120 {
		return nil, shared.NewValidationError("INVALID_MONTHS", "Trend window must be between 1 and 120 months")
	}
	from, to := TrendWindow(now, months)
	out := make([]MonthlyTotal, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		start := from.AddDate(0, i, 0)
		key := start.Format("2006-01")
		out[i] = MonthlyTotal{Month: key, Start: start, Total: decimal.Zero}
		index[key] = i
	}
	for i := range payments {
		p := &payments[i]
		d := p.PaymentDate.UTC()
		if d.Before(from) || !d.Before(to) {
			continue
		}
		if idx, ok := index[d.Format("2006-01")]; ok {
			out[idx].Total = out[idx].Total.Add(p.Amount)
			out[idx].Count++
		}
	}
	for i := range out {
		out[i].Total = out[i].Total.Round(valueobject.Scale)
	}
	return out, nil
}

// DebtorExposure is one payer's overdue position
type DebtorExposure struct {
	PayerID         uuid.UUID       `json:"payer_id"`
	PayerName       string          `json:"payer_name"`
	OverdueAmount   decimal.Decimal `json:"overdue_amount"`
	ReceivableCount int             `json:"receivable_count"`
	EarliestDueDate time.Time       `json:"earliest_due_date"`
	MaxDaysOverdue  int             `json:"max_days_overdue"`
}

// TopOverdueDebtors ranks payers by overdue open balance descending,
// then earliest due date, then payer id, and returns the first n
func TopOverdueDebtors(rs []Receivable, now time.Time, n int) ([]DebtorExposure, error) {
	if n < 1 {
		return nil, shared.NewValidationError("INVALID_LIMIT", "Limit must be positive")
	}
	byPayer := make(map[uuid.UUID]*DebtorExposure)
	for i := range rs {
		r := &rs[i]
		if !r.IsOverdue(now) {
			continue
		}
		d, ok := byPayer[r.PayerID]
		if !ok {
			d = &DebtorExposure{
				PayerID:         r.PayerID,
				PayerName:       r.PayerName,
				OverdueAmount:   decimal.Zero,
				EarliestDueDate: r.DueDate,
			}
			byPayer[r.PayerID] = d
		}
		d.OverdueAmount = d.OverdueAmount.Add(r.OpenAmount)
		d.ReceivableCount++
		if r.DueDate.Before(d.EarliestDueDate) {
			d.EarliestDueDate = r.DueDate
		}
		if days := r.DaysOverdue(now); days > d.MaxDaysOverdue {
			d.MaxDaysOverdue = days
		}
		if d.PayerName == "" {
			d.PayerName = r.PayerName
		}
	}

	out := make([]DebtorExposure, 0, len(byPayer))
	for _, d := range byPayer {
		d.OverdueAmount = d.OverdueAmount.Round(valueobject.Scale)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].OverdueAmount.Cmp(out[j].OverdueAmount); c != 0 {
			return c > 0
		}
		if !out[i].EarliestDueDate.Equal(out[j].EarliestDueDate) {
			return out[i].EarliestDueDate.Before(out[j].EarliestDueDate)
		}
		return out[i].PayerID.String() < out[j].PayerID.String()
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// AgingBucket is the half-open day range [From, To); To == 0 means unbounded
type AgingBucket struct {
	From int
	To   int
}

// Contains reports whether days overdue falls in the bucket
func (b AgingBucket) Contains(days int) bool {
	return days >= b.From && (b.To == 0 || days < b.To)
}

// Label renders the bucket as "31-60" or "91+"
func (b AgingBucket) Label() string {
	if b.To == 0 {
		return strconv.Itoa(b.From) + "+"
	}
	return fmt.Sprintf("%d-%d", b.From, b.To-1)
}

// AgingBuckets is an ordered, gapless partition of [first bound, inf)
type AgingBuckets []AgingBucket

// NewAgingBuckets builds buckets from strictly ascending lower bounds;
// each bucket ends where the next starts and the last is unbounded
func NewAgingBuckets(lowerBounds []int) (AgingBuckets, error) {
	if len(lowerBounds) == 0 {
		return nil, shared.NewValidationError("INVALID_BUCKETS", "At least one aging bucket is required")
	}
	if len(lowerBounds) > 20 {
		return nil, shared.NewValidationError("INVALID_BUCKETS", "At most 20 aging buckets are allowed")
	}
	out := make(AgingBuckets, len(lowerBounds))
	for i, lb := range lowerBounds {
		if lb < 1 {
			return nil, shared.NewValidationError("INVALID_BUCKETS", "Aging bucket bounds must be at least 1 day")
		}
		if i > 0 && lb <= lowerBounds[i-1] {
			return nil, shared.NewValidationError("INVALID_BUCKETS", "Aging bucket bounds must be strictly ascending")
		}
		out[i] = AgingBucket{From: lb}
		if i > 0 {
			out[i-1].To = lb
		}
	}
	return out, nil
}

// DefaultAgingBuckets returns 1-30, 31-60, 61-90 and 91+
func DefaultAgingBuckets() AgingBuckets {
	b, _ := NewAgingBuckets([]int{1, 31, 61, 91})
	return b
}

// Find returns the index of the bucket holding days, or -1
func (bs AgingBuckets) Find(days int) int {
	for i, b := range bs {
		if b.Contains(days) {
			return i
		}
	}
	return -1
}

// AgingBucketTotal is the overdue exposure of one bucket
type AgingBucketTotal struct {
	Label   string          `json:"label"`
	FromDay int             `json:"from_day"`
	ToDay   *int            `json:"to_day,omitempty"` // inclusive upper day; nil when unbounded
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
}

// OverdueAging groups overdue receivables into buckets by days overdue
func OverdueAging(rs []Receivable, now time.Time, buckets AgingBuckets) []AgingBucketTotal {
	out := make([]AgingBucketTotal, len(buckets))
	for i, b := range buckets {
		out[i] = AgingBucketTotal{Label: b.Label(), FromDay: b.From, Total: decimal.Zero}
		if b.To != 0 {
			to := b.To - 1
			out[i].ToDay = &to
		}
	}
	for i := range rs {
		r := &rs[i]
		if !r.IsOverdue(now) {
			continue
		}
		if idx := buckets.Find(r.DaysOverdue(now)); idx >= 0 {
			out[idx].Count++
			out[idx].Total = out[idx].Total.Add(r.OpenAmount)
		}
	}
	for i := range out {
		out[i].Total = out[i].Total.Round(valueobject.Scale)
	}
	return out
}
