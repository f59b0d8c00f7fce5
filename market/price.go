package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money, Price and Quantity are plain float64 so that the arithmetic stays
// cheap. Display paths go through decimal to avoid binary float artefacts.
type (
	Money    = float64
	Price    = float64
	Quantity = float64
)

// Epsilon is the tolerance used when treating a remaining quantity as zero.
const Epsilon = 1e-9

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Positive reports whether v is a finite number above zero.
func Positive(v float64) bool {
	return Finite(v) && v > 0
}

// RoundCents rounds m half-away-from-zero to two decimal places.
func RoundCents(m Money) Money {
	f, _ := decimal.NewFromFloat(m).Round(2).Float64()
	return f
}

// FormatMoney renders m with two decimals, e.g. "10250.50".
func FormatMoney(m Money) string {
	return decimal.NewFromFloat(m).StringFixed(2)
}

// FormatPrice renders p with up to eight decimals and no trailing zeros.
func FormatPrice(p Price) string {
	return decimal.NewFromFloat(p).Round(8).String()
}
