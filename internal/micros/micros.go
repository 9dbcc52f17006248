// Package micros is the fixed-point kernel for the ledger. Every balance,
// reserve, fee and share count is an integer number of micro-units
// (1 coin = 1,000,000 micros) carried in a shopspring/decimal value with a
// zero exponent. decimal is backed by math/big, so nothing here can overflow
// and nothing here ever touches float64 except the display helpers.
package micros

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// PerCoin is the number of micros in one display coin.
	PerCoin = 1_000_000

	// BpsDenominator is the basis-point scale used for fees.
	BpsDenominator = 10_000

	// coinScale is the number of fractional coin digits a micro can express.
	coinScale = 6
)

var (
	// ErrNotWhole is returned when a value has a fractional micro component.
	ErrNotWhole = errors.New("micros: value is not a whole number of micros")

	// ErrNegative is returned when a non-negative value was required.
	ErrNegative = errors.New("micros: value must not be negative")

	// ErrDivisionByZero is returned by FloorDiv and CeilDiv for a zero divisor.
	ErrDivisionByZero = errors.New("micros: division by zero")

	perCoin = decimal.NewFromInt(PerCoin)
	bpsDen  = decimal.NewFromInt(BpsDenominator)
)

// Zero is the zero amount.
var Zero = decimal.Zero

// FromInt returns n micros.
func FromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// FromCoins converts a whole number of coins into micros.
func FromCoins(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).Mul(perCoin)
}

// ParseCoins converts a decimal coin string ("12", "0.25") into micros.
// More than six fractional digits cannot be represented and is rejected.
func ParseCoins(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("micros: parse coins %q: %w", s, err)
	}
	m := d.Mul(perCoin)
	if !m.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d decimal places", ErrNotWhole, s, coinScale)
	}
	return m.Truncate(0), nil
}

// Parse reads an integer micros string such as "1500000".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("micros: parse %q: %w", s, err)
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotWhole, s)
	}
	return d.Truncate(0), nil
}

// ToCoins converts micros to a float coin value. Display only.
func ToCoins(m decimal.Decimal) float64 {
	return m.Div(perCoin).InexactFloat64()
}

// FormatCoins renders micros as a coin string with six decimal places.
func FormatCoins(m decimal.Decimal) string {
	return m.Div(perCoin).StringFixed(coinScale)
}

// IsWhole reports whether d is an integer number of micros.
func IsWhole(d decimal.Decimal) bool {
	return d.IsInteger()
}

// CheckNonNegative validates that d is a whole, non-negative amount.
func CheckNonNegative(d decimal.Decimal) error {
	if !d.IsInteger() {
		return ErrNotWhole
	}
	if d.IsNegative() {
		return ErrNegative
	}
	return nil
}

// FloorDiv returns floor(a / b) for a >= 0 and b > 0.
func FloorDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	if a.IsNegative() || b.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	q, _ := a.QuoRem(b, 0)
	return q, nil
}

// CeilDiv returns ceil(a / b) for a >= 0 and b > 0.
func CeilDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	if a.IsNegative() || b.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	q, r := a.QuoRem(b, 0)
	if !r.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q, nil
}

// MulBps returns floor(a * bps / 10000) for a >= 0.
func MulBps(a decimal.Decimal, bps int) (decimal.Decimal, error) {
	return FloorDiv(a.Mul(decimal.NewFromInt(int64(bps))), bpsDen)
}
