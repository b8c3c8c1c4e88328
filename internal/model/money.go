package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount. Stored as its decimal string in the
// database; never converted through float64.
type Money struct {
	decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{decimal.Zero}

// ParsePrice parses a price from free-form catalog text. Tolerates currency
// markers and whitespace: "$12.50", "SGD 12", " 12 " all parse. Prices are
// parsed once at catalog ingestion; everything downstream works with Money.
func ParsePrice(s string) (Money, error) {
	clean := strings.ToUpper(strings.TrimSpace(s))
	clean = strings.ReplaceAll(clean, "SGD", "")
	clean = strings.ReplaceAll(clean, "$", "")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return Zero, fmt.Errorf("parsing price %q: %w", s, err)
	}
	if d.IsNegative() {
		return Zero, fmt.Errorf("parsing price %q: negative amount", s)
	}
	return Money{d}, nil
}

// MoneyFromStored parses an amount previously written by String. The stored
// form is always a plain decimal, so failure here means the row is corrupt.
func MoneyFromStored(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parsing stored amount %q: %w", s, err)
	}
	return Money{d}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

// MulInt returns m * n, for extending a unit price over a quantity.
func (m Money) MulInt(n int) Money {
	return Money{m.Decimal.Mul(decimal.NewFromInt(int64(n)))}
}

// Equal reports whether two amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Decimal.IsZero()
}

// Display formats the amount with two decimal places for user-facing output.
func (m Money) Display() string {
	return m.Decimal.StringFixed(2)
}
