package pnl

import (
	"errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeePercent returns fee as a percentage of the traded notional (price * volume).
func FeePercent(volume, price, fee decimal.Decimal) (decimal.Decimal, error) {
	notional := price.Mul(volume)
	if notional.IsZero() {
		return decimal.Zero, errors.New("fee percent: zero notional")
	}
	return fee.Div(notional).Mul(hundred), nil
}
