// Package money holds the minor-unit arithmetic shared by the ledger and the
// reporting code. Amounts stay int64 minor units until they are rendered.
package money

import "github.com/shopspring/decimal"

// MinorUnits is the number of minor units in one major currency unit.
const MinorUnits = 100

var (
	hundred     = decimal.NewFromInt(100)
	tenThousand = decimal.NewFromInt(10000)
)

func ToDecimal(amountMinor int64) decimal.Decimal {
	return decimal.New(amountMinor, -2)
}

// Format renders minor units as a fixed two-place major amount, e.g. 500000 -> "5000.00".
func Format(amountMinor int64) string {
	return ToDecimal(amountMinor).StringFixed(2)
}

// ApplyPercent returns amountMinor x percent / 100, rounded half-up to the minor unit.
func ApplyPercent(amountMinor int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountMinor).Mul(percent).Div(hundred).Round(0).IntPart()
}

// ApplyBps returns amountMinor x bps / 10000, rounded half-up to the minor unit.
func ApplyBps(amountMinor, bps int64) int64 {
	return decimal.NewFromInt(amountMinor).Mul(decimal.NewFromInt(bps)).Div(tenThousand).Round(0).IntPart()
}

// FromMajor converts a major-unit decimal to minor units, rounded half-up.
func FromMajor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Percent returns part / whole x 100 to two places, or zero when whole is zero.
func Percent(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).DivRound(decimal.NewFromInt(whole), 2)
}

// DivideMinor returns amountMinor / divisor rounded half-up, or zero when the divisor is zero.
func DivideMinor(amountMinor, divisor int64) int64 {
	if divisor == 0 {
		return 0
	}
	return decimal.NewFromInt(amountMinor).DivRound(decimal.NewFromInt(divisor), 0).IntPart()
}
