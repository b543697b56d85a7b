package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human-decimal amount into the token's smallest
// integer unit (amount * 10^decimals), truncating toward zero. Truncation is
// deliberate: rounding up could request more than the user authorized.
func ToBaseUnits(amount decimal.Decimal, decimals int) string {
	return amount.Shift(int32(decimals)).RoundDown(0).String()
}

// ToBaseUnitsBig is ToBaseUnits returning a big.Int for on-chain call encoding.
func ToBaseUnitsBig(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).RoundDown(0).BigInt()
}

// FromBaseUnits converts an integer base-unit string back into a
// human-decimal amount.
func FromBaseUnits(baseUnits string, decimals int) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(baseUnits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base-unit amount %q: %w", baseUnits, err)
	}
	return d.Shift(int32(-decimals)), nil
}

// FromBaseUnitsBig converts a big.Int base-unit amount into a human-decimal
// amount.
func FromBaseUnitsBig(baseUnits *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(baseUnits, int32(-decimals))
}

// ApplySlippage returns amount * (1 - slippage), truncated to `decimals`
// fractional digits. Slippage is a fraction (0.01 = 1%); callers validate the
// (0, 0.49] range before reaching this point, and 0 simply truncates the
// amount.
func ApplySlippage(amount decimal.Decimal, slippage float64, decimals int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(slippage))
	return amount.Mul(factor).RoundDown(int32(decimals))
}

// InsertIndex returns the calldata byte offset of the n-th 32-byte argument
// word, where the zap router substitutes a runtime-resolved amount.
func InsertIndex(n int) int {
	return 4 + n*32
}

// NoInsertIndex marks a step token whose encoded amount is used literally,
// with no runtime substitution by the router.
const NoInsertIndex = -1
