package ledger

import (
	"testing"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPayment_PartialThenLiquidated(t *testing.T) {
	r := newTestReceivable(t, "1000.00", day(2024, 1, 10))

	res := pay(t, r, "400.00", day(2024, 1, 5))
	assert.Equal(t, StatusOpen, res.PreviousStatus)
	assert.Equal(t, StatusPartial, res.NewStatus)
	assert.False(t, res.SettledNow)
	assert.Nil(t, res.SettlementDate)
	assert.Equal(t, "400", r.PaidAmount.String())
	assert.Equal(t, "600", r.OpenAmount.String())
	assert.Equal(t, StatusPartial, r.Status)
	assert.Nil(t, r.SettlementDate)

	res = pay(t, r, "600.00", day(2024, 1, 8))
	assert.True(t, res.SettledNow)
	assert.True(t, res.StatusChanged())
	assert.True(t, r.PaidAmount.Equal(amount("1000")))
	assert.True(t, r.OpenAmount.IsZero())
	assert.Equal(t, StatusLiquidated, r.Status)
	require.NotNil(t, r.SettlementDate)
	assert.Equal(t, day(2024, 1, 8), *r.SettlementDate)
	require.NotNil(t, r.PaymentDate)
	assert.Equal(t, day(2024, 1, 8), *r.PaymentDate)
	assert.True(t, r.IsPunctual())
	assert.Equal(t, 3, r.Version)
}

func TestApplyPayment_Validation(t *testing.T) {
	r := newTestReceivable(t, "100", day(2024, 1, 10))

	for _, amt := range []string{"0", "-5", "0.004"} {
		_, err := ApplyPayment(r, amount(amt), day(2024, 1, 1))
		require.Error(t, err, amt)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_AMOUNT", de.Code)
	}

	_, err := ApplyPayment(r, amount("10"), time.Time{})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestApplyPayment_StoragePrecision(t *testing.T) {
	t.Run("rejects an amount past the maximum", func(t *testing.T) {
		r := newTestReceivable(t, "100", day(2024, 1, 10))
		_, err := ApplyPayment(r, amount("100000000000000000"), day(2024, 1, 1))
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_AMOUNT", de.Code)
	})

	t.Run("accepts the maximum itself", func(t *testing.T) {
		r := newTestReceivable(t, "9999999999999999.99", day(2024, 1, 10))
		res, err := ApplyPayment(r, valueobject.MaxAmount, day(2024, 1, 1))
		require.NoError(t, err)
		assert.True(t, res.SettledNow)
	})

	t.Run("rejects a payment that overflows the overpaid balance", func(t *testing.T) {
		r := newTestReceivable(t, "100", day(2024, 1, 10))
		pay(t, r, "9999999999999999.00", day(2024, 1, 1))
		require.True(t, r.OverpaidAmount.Equal(amount("9999999999999899")))

		_, err := ApplyPayment(r, amount("101"), day(2024, 1, 2))
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_AMOUNT", de.Code)

		_, err = ApplyPayment(r, amount("100.99"), day(2024, 1, 2))
		assert.NoError(t, err)
	})
}

func TestApplyPayment_DoesNotMutateReceivable(t *testing.T) {
	r := newTestReceivable(t, "100", day(2024, 1, 10))
	_, err := ApplyPayment(r, amount("30"), day(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, r.PaidAmount.IsZero())
	assert.Equal(t, StatusOpen, r.Status)
	assert.Equal(t, 1, r.Version)
}

func TestApplyPayment_Overpayment(t *testing.T) {
	r := newTestReceivable(t, "500.00", day(2024, 1, 10))
	pay(t, r, "300.00", day(2024, 1, 2))

	res := pay(t, r, "300.00", day(2024, 1, 3))
	assert.True(t, res.AppliedAmount.Equal(amount("200")))
	assert.True(t, res.OverpaidAmount.Equal(amount("100")))
	assert.True(t, r.OpenAmount.IsZero())
	assert.True(t, r.PaidAmount.Equal(amount("500")))
	assert.True(t, r.OverpaidAmount.Equal(amount("100")))
	assert.Equal(t, StatusLiquidated, r.Status)

	t.Run("payment on liquidated receivable is fully overpaid and keeps the settlement date", func(t *testing.T) {
		res := pay(t, r, "25.00", day(2024, 2, 1))
		assert.True(t, res.AppliedAmount.IsZero())
		assert.True(t, res.OverpaidAmount.Equal(amount("25")))
		assert.False(t, res.SettledNow)
		assert.False(t, res.StatusChanged())
		assert.Equal(t, day(2024, 1, 3), *r.SettlementDate)
		assert.True(t, r.OverpaidAmount.Equal(amount("125")))
	})
}

func TestApplyPayment_RoundsAtBoundary(t *testing.T) {
	r := newTestReceivable(t, "100.00", day(2024, 1, 10))
	res := pay(t, r, "33.335", day(2024, 1, 1))
	assert.Equal(t, "33.34", res.Amount.String())
	pay(t, r, "33.33", day(2024, 1, 1))
	pay(t, r, "33.33", day(2024, 1, 1))
	assert.Equal(t, StatusLiquidated, r.Status)
	assert.True(t, r.OpenAmount.IsZero())
}

func TestApplyPayment_Invariants(t *testing.T) {
	// many small payments never break paid+open == face
	r := newTestReceivable(t, "1000.00", day(2024, 1, 10))
	prevPaid := decimal.Zero
	prevRank := r.Status.rank()
	for i := 0; i < 40; i++ {
		res, err := ApplyPayment(r, amount("33.33"), day(2024, 1, 1))
		require.NoError(t, err)
		r.ApplySettlement(res, uuid.New())
		require.NoError(t, r.CheckInvariants())
		assert.False(t, r.OpenAmount.IsNegative())
		assert.True(t, r.PaidAmount.GreaterThanOrEqual(prevPaid))
		assert.GreaterOrEqual(t, r.Status.rank(), prevRank)
		prevPaid = r.PaidAmount
		prevRank = r.Status.rank()
	}
	assert.Equal(t, StatusLiquidated, r.Status)
}
