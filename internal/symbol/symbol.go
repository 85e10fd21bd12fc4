// Package symbol classifies raw exchange instrument symbols into structured
// instrument metadata. Classification is pure and total: unknown shapes are
// reported as unrecognized, never as errors.
package symbol

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tickbase/internal/model"
)

const quoteCurrency = "USD"

// Parse classifies a raw instrument symbol.
//
// Recognized shapes:
//
//	BTCUSD              futures
//	P-BTC-116000-010825 option (C|P, asset, strike, DDMMYY expiry)
//
// The second return value is false when the symbol is unrecognized; callers
// are expected to skip such rows.
func Parse(raw string) (*model.InstrumentMeta, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if meta, ok := parseOption(raw); ok {
		return meta, true
	}
	return parseFutures(raw)
}

func parseFutures(raw string) (*model.InstrumentMeta, bool) {
	asset, found := strings.CutSuffix(raw, quoteCurrency)
	if !found || asset == "" {
		return nil, false
	}
	if !isAssetCode(asset) {
		return nil, false
	}
	return &model.InstrumentMeta{
		Instrument:   raw,
		Asset:        asset,
		ContractType: model.ContractFutures,
		Currency:     quoteCurrency,
	}, true
}

func parseOption(raw string) (*model.InstrumentMeta, bool) {
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return nil, false
	}
	var optType model.OptionType
	switch parts[0] {
	case "C":
		optType = model.OptionCall
	case "P":
		optType = model.OptionPut
	default:
		return nil, false
	}
	asset := parts[1]
	if !isAssetCode(asset) {
		return nil, false
	}
	strike, err := decimal.NewFromString(parts[2])
	if err != nil || strike.Sign() <= 0 {
		return nil, false
	}
	// DDMMYY, strict: round-trip the formatted value so inputs that parse
	// but do not survive re-formatting (padding quirks) are rejected too.
	expiry, err := time.ParseInLocation("020106", parts[3], time.UTC)
	if err != nil || expiry.Format("020106") != parts[3] {
		return nil, false
	}
	return &model.InstrumentMeta{
		Instrument:   raw,
		Asset:        asset,
		ContractType: model.ContractOptions,
		OptionType:   optType,
		Strike:       strike,
		Expiry:       expiry,
		Currency:     quoteCurrency,
	}, true
}

func isAssetCode(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return s != ""
}
