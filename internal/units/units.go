// Package units provides pure unit-conversion helpers for Odin / ckBTC math.
// No API calls, no side effects.
//
// The trading canister uses milli-subunits everywhere: for any asset,
// 1 display-unit = 10^(divisibility+decimals) milli-subunits. BTC has
// divisibility=8 and decimals=3, so canister BTC balances are
// millisatoshis while the ICRC-1 ckBTC ledger reports plain satoshis.
//
// Conversions that feed withdrawal decisions are integer-only; floating
// point appears solely in the display helpers.
package units

import (
	"fmt"
	"strconv"
)

const (
	MsatPerSat int64 = 1_000
	SatsPerBTC int64 = 100_000_000
)

// MsatToSats converts millisatoshis to satoshis, flooring.
func MsatToSats(msat int64) int64 {
	return msat / MsatPerSat
}

// SatsToMsat converts satoshis to millisatoshis.
func SatsToMsat(sats int64) int64 {
	return sats * MsatPerSat
}

// SatsToUSD converts satoshis to USD at the given BTC/USD rate.
func SatsToUSD(sats int64, btcUSDRate float64) (float64, error) {
	if btcUSDRate <= 0 {
		return 0, fmt.Errorf("btc/usd rate must be > 0, got %f", btcUSDRate)
	}
	return float64(sats) / float64(SatsPerBTC) * btcUSDRate, nil
}

// USDToSats converts a USD amount to satoshis at the given BTC/USD rate.
func USDToSats(usd, btcUSDRate float64) (int64, error) {
	if btcUSDRate <= 0 {
		return 0, fmt.Errorf("btc/usd rate must be > 0, got %f", btcUSDRate)
	}
	return int64(usd/btcUSDRate*float64(SatsPerBTC) + 0.5), nil
}

// SubunitsToDisplay converts raw sub-units to display units.
// Example: 100_000_000 raw with divisibility=8 -> 1.0.
func SubunitsToDisplay(raw int64, divisibility int) float64 {
	return float64(raw) / pow10(divisibility)
}

// DisplayToSubunits converts display units to raw sub-units.
func DisplayToSubunits(display float64, divisibility int) int64 {
	return int64(display * pow10(divisibility))
}

// MillisubunitsToDisplay converts canister milli-subunits to display units.
// Example: 10_000_000_000_000 with divisibility=8, decimals=3 -> 100.0.
func MillisubunitsToDisplay(msu int64, divisibility, decimals int) float64 {
	return float64(msu) / pow10(divisibility+decimals)
}

// DisplayToMillisubunits converts display units to canister milli-subunits.
func DisplayToMillisubunits(display float64, divisibility, decimals int) int64 {
	return int64(display * pow10(divisibility+decimals))
}

// FmtSats renders a sat amount for log lines, with a USD value when a
// positive BTC/USD rate is supplied.
func FmtSats(sats int64, btcUSDRate float64) string {
	if btcUSDRate > 0 {
		usd := float64(sats) / float64(SatsPerBTC) * btcUSDRate
		return fmt.Sprintf("%s sats ($%.3f)", groupDigits(sats), usd)
	}
	return groupDigits(sats) + " sats"
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// groupDigits formats n with comma thousand separators.
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
