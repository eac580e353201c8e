// Package money converts between boundary decimals and integer minor units.
// All arithmetic inside the checkout core happens on int64 cents.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToCents converts a currency amount to cents, rounding half-up at two decimal places.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}

// FromCents converts cents back to a two-decimal currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PercentOf returns rate*cents rounded half-up to the nearest cent. rate is a
// fraction: 0.10 means ten percent.
func PercentOf(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}

// Format renders cents as a fixed two-decimal string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// MulQty multiplies a unit price by a quantity in cents.
func MulQty(unitCents int64, qty int) int64 {
	return unitCents * int64(qty)
}
