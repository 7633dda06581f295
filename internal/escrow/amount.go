package escrow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// mistPerSui converts the chain's display unit to its smallest unit.
var mistPerSui = decimal.NewFromInt(1_000_000_000)

// PriceToMist converts a display-unit price string to the smallest on-chain
// unit: floor(price * 1e9). Decimal arithmetic avoids the float drift a
// naive multiply would introduce for values like 0.000000001.
func PriceToMist(display string) (uint64, error) {
	price, err := decimal.NewFromString(display)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", display, err)
	}
	if price.IsNegative() {
		return 0, fmt.Errorf("price must not be negative: %s", display)
	}
	mist := price.Mul(mistPerSui).Floor()
	if !mist.IsInteger() || mist.BigInt().Sign() < 0 || !mist.BigInt().IsUint64() {
		return 0, fmt.Errorf("price out of range: %s", display)
	}
	return mist.BigInt().Uint64(), nil
}
