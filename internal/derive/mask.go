package derive

import (
	"strings"
	"unicode"
)

// MaskNationalID redacts a 12-digit national identity number for display.
// Non-digit characters are stripped first; if fewer than 8 digits remain the
// input cannot be masked safely and is returned unmodified.
func MaskNationalID(id string) string {
	digits := digitsOnly(id)
	if len(digits) < 8 {
		return id
	}
	return digits[:4] + "-XXXX-" + digits[len(digits)-4:]
}

// MaskTaxID redacts a 10-character alphanumeric tax identifier. Whitespace is
// stripped first; anything that is not exactly 10 characters is returned
// unmodified.
func MaskTaxID(id string) string {
	s := stripSpace(id)
	if len(s) != 10 {
		return id
	}
	return s[:5] + "-XX" + s[8:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripSpace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
