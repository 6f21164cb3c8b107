package shared

import "github.com/shopspring/decimal"

// Round2 rounds a currency amount to cents, half away from zero.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
