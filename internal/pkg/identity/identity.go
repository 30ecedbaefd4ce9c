package identity

import (
	"strings"
	"unicode"
)

// Dial prefixes for the local phone formats we accept. A leading zero in
// one of these countries is rewritten to the E.164 country prefix.
var dialPrefixes = map[string]string{
	"DE": "49",
	"AT": "43",
	"CH": "41",
	"FR": "33",
	"IT": "39",
	"ES": "34",
	"NL": "31",
	"BE": "32",
	"PL": "48",
	"GB": "44",
	"US": "1",
}

// NormalizeEmail canonicalizes a contact email into the comparable form
// used as the listing's unique key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCountry canonicalizes a country input to upper-case ISO-2,
// falling back to def when the input is empty or not a two-letter code.
func NormalizeCountry(country, def string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	if len(c) != 2 {
		return strings.ToUpper(strings.TrimSpace(def))
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return strings.ToUpper(strings.TrimSpace(def))
		}
	}
	return c
}

// NormalizePhone canonicalizes a phone number to E.164. It accepts numbers
// already carrying a +/00 international prefix and local formats with a
// leading zero for countries whose dial prefix is known. Returns "" when
// the input cannot be normalized.
func NormalizePhone(phone, country string) string {
	digits, hasPlus := stripPhone(phone)
	if digits == "" {
		return ""
	}

	switch {
	case hasPlus:
		// already international
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		prefix, ok := dialPrefixes[NormalizeCountry(country, "")]
		if !ok {
			return ""
		}
		digits = prefix + digits[1:]
	default:
		return ""
	}

	// E.164: up to 15 digits, no leading zero on the country code.
	if len(digits) < 7 || len(digits) > 15 || strings.HasPrefix(digits, "0") {
		return ""
	}
	return "+" + digits
}

// stripPhone removes formatting characters and reports whether the number
// carried a leading plus.
func stripPhone(phone string) (string, bool) {
	trimmed := strings.TrimSpace(phone)
	hasPlus := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '/' || r == '.' || r == '(' || r == ')' || r == '+':
			// formatting noise
		default:
			return "", false
		}
	}
	return b.String(), hasPlus
}
