package domain_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/launch-ledger/internal/domain"
)

func TestParseAmount(t *testing.T) {
	v, err := domain.ParseAmount("12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", v.String())

	// Empty means zero; the store may carry unset columns
	v, err = domain.ParseAmount("")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign())

	_, err = domain.ParseAmount("-1")
	assert.Error(t, err)
	_, err = domain.ParseAmount("1.5")
	assert.Error(t, err)
	_, err = domain.ParseAmount("0x10")
	assert.Error(t, err)

	// uint256-scale values fit
	huge := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err = domain.ParseAmount(huge)
	require.NoError(t, err)
	assert.Equal(t, huge, v.String())
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "0", domain.AmountString(nil))
	assert.Equal(t, "0", domain.AmountString(domain.Zero()))
	assert.Equal(t, "42", domain.AmountString(big.NewInt(42)))
}

func TestCurrencyAmount(t *testing.T) {
	// price * tokens / 10^decimals, multiply before divide
	assert.Equal(t, "200",
		domain.CurrencyAmount(big.NewInt(2), big.NewInt(100), 0).String())
	assert.Equal(t, "2",
		domain.CurrencyAmount(big.NewInt(2), big.NewInt(100), 2).String())

	// Divide-first would floor to zero here; multiply-first keeps precision
	assert.Equal(t, "15",
		domain.CurrencyAmount(big.NewInt(3), big.NewInt(5), 0).String())
	assert.Equal(t, "1",
		domain.CurrencyAmount(big.NewInt(3), big.NewInt(5), 1).String())

	// 18-decimal token priced at 2 units per whole token
	whole, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, "2",
		domain.CurrencyAmount(big.NewInt(2), whole, 18).String())
}
