package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewMoney(t *testing.T) {
	t.Run("normalises amount to two places", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("100.505"), BRL)
		require.NoError(t, err)
		assert.Equal(t, BRL, m.Currency())
		assert.Equal(t, "100.51", m.Amount().String())
	})

	t.Run("rounds half away from zero on negatives", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("-0.125"), BRL)
		require.NoError(t, err)
		assert.Equal(t, "-0.13", m.Amount().String())
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestNewMoneyFromString(t *testing.T) {
	t.Run("valid string", func(t *testing.T) {
		m, err := NewMoneyFromString("123.45", USD)
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(decimal.RequireFromString("123.45")))
	})

	t.Run("invalid string", func(t *testing.T) {
		_, err := NewMoneyFromString("not-a-number", USD)
		assert.Error(t, err)
	})
}

func TestTolerance(t *testing.T) {
	assert.True(t, NearlyEqual(decimal.RequireFromString("1000"), decimal.RequireFromString("1000.0000005")))
	assert.False(t, NearlyEqual(decimal.RequireFromString("1000"), decimal.RequireFromString("1000.00001")))
	assert.True(t, IsNegligible(decimal.RequireFromString("0.000001")))
	assert.False(t, IsNegligible(decimal.RequireFromString("0.01")))
}

func TestExceedsMax(t *testing.T) {
	assert.False(t, ExceedsMax(MaxAmount))
	assert.False(t, ExceedsMax(MaxAmount.Neg()))
	assert.True(t, ExceedsMax(MaxAmount.Add(decimal.RequireFromString("0.01"))))
	assert.True(t, ExceedsMax(decimal.RequireFromString("-100000000000000000")))
}

func TestMoneyAddSubtract(t *testing.T) {
	a, _ := NewMoneyFromString("400.00", BRL)
	b, _ := NewMoneyFromString("600.00", BRL)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "1000.00 BRL", sum.String())

	diff, err := b.Subtract(a)
	require.NoError(t, err)
	assert.True(t, diff.Amount().Equal(decimal.NewFromInt(200)))

	usd, _ := NewMoneyFromString("1", USD)
	_, err = a.Add(usd)
	assert.Error(t, err)
	_, err = a.Subtract(usd)
	assert.Error(t, err)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("brl")
	require.NoError(t, err)
	assert.Equal(t, BRL, c)

	_, err = ParseCurrency("XYZW")
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	out := FormatAmount(decimal.RequireFromString("400"), BRL, language.English)
	assert.Contains(t, out, "400")

	fallback := FormatAmount(decimal.RequireFromString("5"), Currency("???"), language.English)
	assert.Equal(t, "5.00 ???", fallback)
}

func TestMoneyJSON(t *testing.T) {
	m, _ := NewMoneyFromString("99.9", BRL)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"99.90","currency":"BRL"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equals(m))
}
