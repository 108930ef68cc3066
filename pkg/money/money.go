// Package money centralizes the rounding rules applied to monetary values.
// Amounts are rounded to 2 decimal places at every computation boundary;
// intermediate fee math keeps 3 places before the final 2-place rounding.
package money

import "github.com/shopspring/decimal"

// Round normalizes an amount to 2 decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// RoundFee normalizes an intermediate fee figure to 3 decimal places.
func RoundFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(3)
}

// Equal compares two amounts at 2-decimal precision, avoiding false
// negatives from float-derived decimals.
func Equal(a, b decimal.Decimal) bool {
	return Round(a).Equal(Round(b))
}

// GreaterThan reports a > b at 2-decimal precision.
func GreaterThan(a, b decimal.Decimal) bool {
	return Round(a).GreaterThan(Round(b))
}

// IsPositive reports whether the 2-decimal rounded amount is above zero.
func IsPositive(amount decimal.Decimal) bool {
	return Round(amount).IsPositive()
}

// Shortfall returns how much `available` falls short of `required`, rounded.
func Shortfall(required, available decimal.Decimal) decimal.Decimal {
	return Round(required.Sub(available))
}
