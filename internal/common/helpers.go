package common

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	NativeDecimals = 18 // wei per native coin (10^18)
)

// WeiToNative converts wei to a native-currency decimal string without float precision loss
func WeiToNative(wei *big.Int) string {
	if wei == nil {
		return formatWithDecimals(new(big.Int), NativeDecimals)
	}
	return formatWithDecimals(wei, NativeDecimals)
}

// NativeToWei converts a native-currency decimal string to wei without float precision loss
func NativeToWei(amount string) (*big.Int, error) {
	return parseWithDecimals(amount, NativeDecimals)
}

// AddPercent returns value * (100 + percent) / 100, rounded down.
// Example: AddPercent(1.2e18, 10) = 1.32e18
func AddPercent(value *big.Int, percent int64) *big.Int {
	out := new(big.Int).Mul(value, big.NewInt(100+percent))
	return out.Quo(out, big.NewInt(100))
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value *big.Int, decimals int) string {
	neg := value.Sign() < 0
	s := new(big.Int).Abs(value).String()

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	out := s[:pos] + "." + s[pos:]
	if neg {
		out = "-" + out
	}
	return out
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty string")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("amount must be unsigned")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	// Pad or reject fractional part beyond the unit precision
	if len(frac) > decimals {
		return nil, fmt.Errorf("too many decimal places: max %d", decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	// Combine and parse
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

// FiatValue multiplies a wei amount by a decimal rate and rounds to cents
// Example: FiatValue(1.5e18, "2000.10") = "3000.15"
func FiatValue(wei *big.Int, rate string) (string, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(rate))
	if !ok {
		return "", fmt.Errorf("invalid rate %q", rate)
	}
	if wei == nil {
		wei = new(big.Int)
	}
	value := new(big.Rat).SetFrac(wei, new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil))
	return value.Mul(value, r).FloatString(2), nil
}
