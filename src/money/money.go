// Package money implements integer-centavo arithmetic for the billing
// engine. All amounts inside the engine are signed 64-bit centavos; the
// only place a fractional peso value is ever parsed or rendered is the
// pesos-string boundary at the bottom of this file.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Centavos is the canonical internal money unit: 1 peso = 100 Centavos.
type Centavos int64

// Zero is the additive identity.
const Zero Centavos = 0

// Add returns a+b.
func Add(a, b Centavos) Centavos { return a + b }

// Sub returns a-b.
func Sub(a, b Centavos) Centavos { return a - b }

// Neg returns -a.
func Neg(a Centavos) Centavos { return -a }

// Min returns the smaller of a and b.
func Min(a, b Centavos) Centavos {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Centavos) Centavos {
	if a > b {
		return a
	}
	return b
}

// Clamp0 returns a if a > 0, else 0.
func Clamp0(a Centavos) Centavos {
	if a < 0 {
		return 0
	}
	return a
}

// MulRate multiplies principal by a rational monthly rate (e.g. 0.05 for
// 5%) and rounds the result half-up to the nearest centavo. The rate
// itself is carried as a decimal.Decimal so that "0.05" never degrades
// into a binary-float approximation before the multiplication happens.
func MulRate(principal Centavos, rate decimal.Decimal) Centavos {
	amt := decimal.NewFromInt(int64(principal)).Mul(rate)
	return Centavos(amt.Round(0).IntPart())
}

// ParsePesos parses a display-unit pesos string ("914.30") into exact
// centavos (91430). It is the only function in this package that touches
// github.com/shopspring/decimal's string parser — decimal.NewFromString
// parses the decimal literal exactly, so no binary floating-point
// representation of the fraction is ever created.
func ParsePesos(s string) (Centavos, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: invalid pesos value %q: %w", s, err)
	}
	c := d.Mul(decimal.NewFromInt(100)).Round(0)
	return Centavos(c.IntPart()), nil
}

// FormatPesos renders centavos back to a two-decimal pesos string
// ("914.30"). Round-tripping FormatPesos(ParsePesos(s)) == s holds for
// every s expressible with <= 2 decimal places (spec round-trip law).
func FormatPesos(c Centavos) string {
	d := decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100))
	return d.StringFixed(2)
}
