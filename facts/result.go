// Package facts answers narrow factual questions about a wallet or a user by calling
// RPC nodes and public HTTP services. Every provider returns a Result, never an
// error: upstream failures surface as data ({"error": ...}) that the model or the
// fallback synthesizer can reason about.
package facts

import (
	"math/big"
	"strings"
)

// Result is the JSON object a provider hands back to the model.
type Result map[string]any

// errResult builds the structured failure value providers return.
func errResult(msg string) Result {
	return Result{"error": msg}
}

// MaxDecimals is the largest value an ERC-20 decimals() can hold.
const MaxDecimals = 255

// FormatUnits renders an integer token amount with the given decimals, trimming
// trailing zeros ("150000000", 6 -> "150").
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	if decimals <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	if decimals > MaxDecimals {
		decimals = MaxDecimals
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := intPart
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// weiToEther converts a wei amount to a float for scoring and display.
func weiToEther(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e18)).Float64()
	return f
}
