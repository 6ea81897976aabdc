package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	BRL Currency = "BRL" // Brazilian Real (default)
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = BRL

// Scale is the number of decimal places every monetary value is normalised
// to when it enters the ledger. Rounding is half away from zero.
const Scale int32 = 2

// Tolerance bounds equality checks between derived balances (1e-6 of the unit)
var Tolerance = decimal.New(1, -6)

// MaxAmount is the largest value a DECIMAL(18,2) column holds
var MaxAmount = decimal.RequireFromString("9999999999999999.99")

// ExceedsMax reports whether amount does not fit the ledger's storage precision
func ExceedsMax(amount decimal.Decimal) bool {
	return amount.Abs().GreaterThan(MaxAmount)
}

// Normalize rounds an amount to Scale places, half away from zero
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// NearlyEqual reports whether a and b differ by no more than Tolerance
func NearlyEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// IsNegligible reports whether amount is within Tolerance of zero
func IsNegligible(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(Tolerance)
}

// ParseCurrency validates an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return Currency(unit.String()), nil
}

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the amount normalised to Scale
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   Normalize(amount),
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Add returns a new Money with the sum of both amounts
// Returns error if currencies don't match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns a new Money with the difference
// Returns error if currencies don't match
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(Scale), m.currency)
}

// Format renders the money for humans in the given language,
// e.g. "R$ 400.00" for BRL in English.
func (m Money) Format(tag language.Tag) string {
	return FormatAmount(m.amount, m.currency, tag)
}

// FormatAmount renders amount in cur using x/text currency symbols.
// Unknown currencies fall back to String-style output.
func FormatAmount(amount decimal.Decimal, cur Currency, tag language.Tag) string {
	unit, err := currency.ParseISO(string(cur))
	if err != nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(Scale), cur)
	}
	f, _ := Normalize(amount).Float64()
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(f)))
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(Scale),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
