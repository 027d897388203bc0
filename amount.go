package avail

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// maxBalance is the largest value the chain's u128 balance type can hold.
var maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ParseAmount converts a human-entered decimal quantity into the chain's
// smallest unit by scaling with the chain's decimal count. The result must be
// non-negative, integral after scaling, and fit the chain's 128-bit balance
// representation.
func ParseAmount(text string, decimals uint32) (*big.Int, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q is not a decimal number", text)
	}
	if d.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q is negative", text)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Wrapf(ErrInvalidAmount,
			"%q has more than %d decimal places", text, decimals)
	}

	planck := scaled.BigInt()
	if planck.Cmp(maxBalance) > 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q overflows the chain balance type", text)
	}
	return planck, nil
}

// Formatter renders planck values in the chain's display unit. It is an
// explicit value produced from Connection.Info so two connections with
// different decimal counts never share formatting state.
type Formatter struct {
	Decimals uint32
	Symbol   string
}

func (f Formatter) Format(planck *big.Int) string {
	if planck == nil {
		planck = big.NewInt(0)
	}
	d := decimal.NewFromBigInt(planck, -int32(f.Decimals))
	if f.Symbol == "" {
		return d.String()
	}
	return d.String() + " " + f.Symbol
}
