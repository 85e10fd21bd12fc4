package symbol

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickbase/internal/model"
)

func TestParse_Futures(t *testing.T) {
	meta, ok := Parse("BTCUSD")
	require.True(t, ok, "BTCUSD should classify")
	assert.Equal(t, "BTC", meta.Asset)
	assert.Equal(t, model.ContractFutures, meta.ContractType)
	assert.Equal(t, "USD", meta.Currency)
	assert.Equal(t, "BTCUSD", meta.Instrument)
}

func TestParse_Option(t *testing.T) {
	meta, ok := Parse("P-BTC-116000-010825")
	require.True(t, ok, "put option should classify")
	assert.Equal(t, "BTC", meta.Asset)
	assert.Equal(t, model.ContractOptions, meta.ContractType)
	assert.Equal(t, model.OptionPut, meta.OptionType)
	assert.True(t, meta.Strike.Equal(decimal.NewFromInt(116000)), "strike %s", meta.Strike)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), meta.Expiry)
}

func TestParse_Call(t *testing.T) {
	meta, ok := Parse("C-ETH-3500-311225")
	require.True(t, ok)
	assert.Equal(t, model.OptionCall, meta.OptionType)
	assert.Equal(t, "ETH", meta.Asset)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), meta.Expiry)
}

func TestParse_Unrecognized(t *testing.T) {
	cases := []string{
		"GARBAGE",
		"",
		"USD",
		"btcusd",
		"X-BTC-116000-010825",
		"P-BTC-116000-990299",  // bad calendar date
		"P-BTC-116000-320125",  // day 32
		"P-BTC--010825",        // empty strike
		"P-BTC-0-010825",       // non-positive strike
		"P-BTC-116000",         // missing expiry
		"P-btc-116000-010825",  // lowercase asset
		"P-BTC-1a6000-010825",  // junk strike
	}
	for _, raw := range cases {
		_, ok := Parse(raw)
		assert.False(t, ok, "expected %q to be unrecognized", raw)
	}
}
