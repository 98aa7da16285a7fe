package state

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalScale is the number of fractional digits of the ledger's fixed-point
// decimal. Fungible quantities are stored as integers of 10^-DecimalScale.
const DecimalScale = 18

// ToAtto converts a decimal quantity into base units. Values with more
// fractional digits than DecimalScale are rejected rather than rounded.
func ToAtto(amount decimal.Decimal) (*big.Int, error) {
	shifted := amount.Shift(DecimalScale)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount.String(), DecimalScale)
	}
	return shifted.BigInt(), nil
}

// FromAtto converts base units back into a decimal quantity.
func FromAtto(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -DecimalScale)
}

func granularity(divisibility uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(DecimalScale-int(divisibility))), nil)
}
