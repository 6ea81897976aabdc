package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics records payment recorder and reconciliation business events
type LedgerMetrics struct {
	paymentsTotal    *Counter
	paymentAmount    *Histogram
	settlementsTotal *Counter
	replaysTotal     *Counter
	conflictsTotal   *Counter
	reconcileRuns    *Counter
	discrepancies    *Counter
	repairs          *Counter
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	in := NewInstruments(meter)
	m := &LedgerMetrics{
		paymentsTotal:    in.Counter("ledger_payments_total", "Payments recorded by method", "{payment}"),
		paymentAmount:    in.Histogram("ledger_payment_amount", "Distribution of recorded payment amounts", "{currency}", AmountBuckets),
		settlementsTotal: in.Counter("ledger_settlements_total", "Receivables liquidated by a payment", "{receivable}"),
		replaysTotal:     in.Counter("ledger_payment_replays_total", "Payments answered from an idempotency key", "{payment}"),
		conflictsTotal:   in.Counter("ledger_write_conflicts_total", "Concurrent write conflicts on receivables", "{conflict}"),
		reconcileRuns:    in.Counter("ledger_reconciliation_runs_total", "Reconciliation runs", "{run}"),
		discrepancies:    in.Counter("ledger_discrepancies_total", "Ledger discrepancies found by reconciliation", "{discrepancy}"),
		repairs:          in.Counter("ledger_repairs_total", "Receivables repaired by reconciliation", "{receivable}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// PaymentRecorded counts a new payment and its amount
func (m *LedgerMetrics) PaymentRecorded(ctx context.Context, tenantID uuid.UUID, method string, amount decimal.Decimal, settled bool) {
	tenant := AttrTenantID.String(tenantID.String())
	m.paymentsTotal.Inc(ctx, tenant, AttrPaymentMethod.String(method), AttrSettled.Bool(settled))
	m.paymentAmount.Record(ctx, amount.InexactFloat64(), tenant, AttrPaymentMethod.String(method))
	if settled {
		m.settlementsTotal.Inc(ctx, tenant)
	}
}

// PaymentReplayed counts an idempotent replay
func (m *LedgerMetrics) PaymentReplayed(ctx context.Context, tenantID uuid.UUID) {
	m.replaysTotal.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// ConflictDetected counts a version or lock conflict
func (m *LedgerMetrics) ConflictDetected(ctx context.Context, tenantID uuid.UUID, willRetry bool) {
	m.conflictsTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrRetried.Bool(willRetry))
}

// ReconciliationCompleted counts a run with its findings
func (m *LedgerMetrics) ReconciliationCompleted(ctx context.Context, tenantID uuid.UUID, discrepancies, repaired int) {
	tenant := AttrTenantID.String(tenantID.String())
	outcome := "consistent"
	if discrepancies > 0 {
		outcome = "discrepancies"
	}
	m.reconcileRuns.Inc(ctx, tenant, AttrOutcome.String(outcome))
	if discrepancies > 0 {
		m.discrepancies.Add(ctx, int64(discrepancies), tenant)
	}
	if repaired > 0 {
		m.repairs.Add(ctx, int64(repaired), tenant)
	}
}
