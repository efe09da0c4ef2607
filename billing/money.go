package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Amount with currency
// =============================================================================

// Money is a price. Decimal keeps 9.99 * 12 exact.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// ParseMoney reads a decimal string such as "199.00".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (m Money) Zero() Money                 { return Money{Amount: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money           { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Amount: m.Amount.Mul(s), Currency: m.Currency} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Amount: m.Amount.Div(s), Currency: m.Currency} }
func (m Money) Round(places int32) Money    { return Money{Amount: m.Amount.Round(places), Currency: m.Currency} }
func (m Money) IsZero() bool                { return m.Amount.IsZero() }
func (m Money) IsNegative() bool            { return m.Amount.IsNegative() }
func (m Money) Equal(o Money) bool          { return m.Currency == o.Currency && m.Amount.Equal(o.Amount) }

// String renders "<currency><amount>" with two decimals, e.g. "₹199.00".
// Locale-aware formatting is left to the display layer.
func (m Money) String() string { return m.Currency + m.Amount.StringFixed(2) }

// =============================================================================
// TOTALS - Per-currency sums
// =============================================================================

// Totals sums money per currency. Amounts in different currencies are never added.
type Totals map[string]decimal.Decimal

func (t Totals) Add(m Money) {
	t[m.Currency] = t[m.Currency].Add(m.Amount)
}

// Get returns the total for a currency (zero when absent).
func (t Totals) Get(currency string) decimal.Decimal {
	return t[currency]
}

// Money lists the totals as Money values, rounded to cents, sorted by currency.
func (t Totals) Money() []Money {
	out := make([]Money, 0, len(t))
	for cur, amount := range t {
		out = append(out, Money{Amount: amount.Round(2), Currency: cur})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
