package txparse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountToken matches one whitespace-delimited token that looks like a money
// amount: optional sign/parentheses/currency marker, digits with optional
// thousands grouping, optional 1-2 digit fraction.
var amountToken = regexp.MustCompile(`^\(?-?(?:[£$€₹]|Rs\.?)?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?\)?$`)

var thousandsOnly = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)

// isAmountToken reports whether token is a plausible amount. Bare integers
// without a fraction, sign, parentheses or currency marker are rejected so
// that reference numbers and years are not mistaken for amounts.
func isAmountToken(token string) bool {
	if !amountToken.MatchString(token) {
		return false
	}
	if strings.ContainsAny(token, "-()£$€₹R") {
		return true
	}
	// A bare unsigned integer does not qualify: without a fraction or group
	// separator it is indistinguishable from a reference number or year.
	return strings.ContainsAny(token, ".,")
}

// NormalizeAmount parses an amount token with locale-aware thousands and
// decimal separators into an exact signed decimal. The boolean result is
// false when the token is not a parseable amount.
//
// Negative amounts may be written with a leading minus, surrounding
// parentheses, or a trailing DR marker; a trailing CR marker is positive.
func NormalizeAmount(token string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return decimal.Zero, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	switch upper := strings.ToUpper(s); {
	case strings.HasSuffix(upper, "DR"):
		neg = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	for _, marker := range []string{"£", "$", "€", "₹", "Rs.", "Rs"} {
		s = strings.TrimPrefix(s, marker)
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return decimal.Zero, false
	}

	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// normalizeSeparators rewrites locale-specific grouping into the internal
// representation with '.' as the only decimal separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost one is the decimal separator.
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		if thousandsOnly.MatchString(s) {
			return strings.ReplaceAll(s, ",", "")
		}
		if strings.Count(s, ",") == 1 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if thousandsOnly.MatchString(s) {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}
