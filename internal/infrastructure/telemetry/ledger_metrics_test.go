package telemetry_test

import (
	"context"
	"testing"

	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestLedgerMetrics(t *testing.T) {
	reader, mp := newTestMeter(t)
	ctx := context.Background()
	tenant := uuid.New()

	m, err := telemetry.NewLedgerMetrics(mp.Meter("ledger"))
	require.NoError(t, err)

	m.PaymentRecorded(ctx, tenant, "INSTANT_TRANSFER", decimal.NewFromInt(400), false)
	m.PaymentRecorded(ctx, tenant, "INSTANT_TRANSFER", decimal.NewFromInt(600), true)
	m.PaymentRecorded(ctx, tenant, "BANK_SLIP", decimal.RequireFromString("12.34"), false)
	m.PaymentReplayed(ctx, tenant)
	m.ConflictDetected(ctx, tenant, true)
	m.ConflictDetected(ctx, tenant, false)
	m.ReconciliationCompleted(ctx, tenant, 0, 0)
	m.ReconciliationCompleted(ctx, tenant, 3, 2)

	rm := collect(t, reader)
	tenantAttr := telemetry.AttrTenantID.String(tenant.String())

	assert.Equal(t, int64(3), counterValue(t, rm, "ledger_payments_total", tenantAttr))
	assert.Equal(t, int64(2), counterValue(t, rm, "ledger_payments_total", telemetry.AttrPaymentMethod.String("INSTANT_TRANSFER")))
	assert.Equal(t, int64(1), counterValue(t, rm, "ledger_settlements_total"))
	assert.Equal(t, int64(1), counterValue(t, rm, "ledger_payment_replays_total"))
	assert.Equal(t, int64(1), counterValue(t, rm, "ledger_write_conflicts_total", telemetry.AttrRetried.Bool(true)))
	assert.Equal(t, int64(2), counterValue(t, rm, "ledger_reconciliation_runs_total"))
	assert.Equal(t, int64(1), counterValue(t, rm, "ledger_reconciliation_runs_total", telemetry.AttrOutcome.String("discrepancies")))
	assert.Equal(t, int64(3), counterValue(t, rm, "ledger_discrepancies_total"))
	assert.Equal(t, int64(2), counterValue(t, rm, "ledger_repairs_total"))

	amounts, ok := findMetric(rm, "ledger_payment_amount")
	require.True(t, ok)
	var count uint64
	var sum float64
	for _, dp := range amounts.Data.(metricdata.Histogram[float64]).DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	assert.Equal(t, uint64(3), count)
	assert.InDelta(t, 1012.34, sum, 1e-9)
}
