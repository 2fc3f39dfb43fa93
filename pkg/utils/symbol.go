package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// Company-name aliases accepted in place of a ticker.
var symbolAliases = map[string]string{
	"APPLE":     "AAPL",
	"GOOGLE":    "GOOGL",
	"ALPHABET":  "GOOGL",
	"GOOG":      "GOOGL",
	"MICROSOFT": "MSFT",
	"AMAZON":    "AMZN",
	"FACEBOOK":  "META",
	"FB":        "META",
	"TESLA":     "TSLA",
	"NVIDIA":    "NVDA",
}

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// NormalizeSymbol normalizes a user-input ticker: trims, upper-cases,
// drops a leading "$" and resolves company-name aliases.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Remove $ prefix if present (cashtags)
	symbol = strings.TrimPrefix(symbol, "$")

	if canonical, ok := symbolAliases[symbol]; ok {
		return canonical
	}
	return symbol
}

// IsValidSymbol reports whether s looks like a US ticker.
func IsValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}
