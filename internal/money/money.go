// Package money centralises monetary arithmetic for the ledger engine.
// All amounts are decimal values rounded half-up; float64 never touches
// a balance.
package money

import (
	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the sub-unit precision carried on schedule splits
// and ledger balances.
const MinorUnitPlaces = 2

// Zero is the additive identity.
var Zero = decimal.Zero

// FromInt builds an amount from whole currency units.
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// MustParse parses a decimal literal and panics on malformed input.
// Reserved for constants and test fixtures.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Round rounds half-up to the minor unit.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitPlaces)
}

// RoundUnit rounds half-up to whole currency units. Installments are
// collected in whole kwacha at the table, so quoted payments use this.
func RoundUnit(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// MinorUnits returns n minor units as an amount, used for rounding
// tolerances that scale with record counts.
func MinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -MinorUnitPlaces)
}

// Clamp returns d, or zero when d is negative.
func Clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}
