package domain

import (
	"fmt"
	"math/big"
)

// Zero returns a fresh zero amount
func Zero() *big.Int {
	return new(big.Int)
}

// ParseAmount parses a base-10 integer amount string. The store carries
// amounts as numeric(78,0) text, wide enough for uint256 values.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// AmountString formats an amount for storage. Nil is stored as zero.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// CurrencyAmount computes the payment due for tokenAmount sale tokens at
// the configured bps price: price * tokenAmount / 10^tokenDecimals.
// Multiply-then-divide over big integers, so the intermediate product
// never overflows.
func CurrencyAmount(tokenPriceBps, tokenAmount *big.Int, tokenDecimals uint8) *big.Int {
	product := new(big.Int).Mul(tokenPriceBps, tokenAmount)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	return product.Div(product, scale)
}
