// Package derive implements the fraud-signal derivation and normalization
// layer: it turns heterogeneous, partially-missing backend KYC payloads into
// deterministic, presentation-ready case rows. Every function in this package
// is total — any input variation resolves to a defined output, never an error.
package derive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field pulls a value from a record-like mapping by trying an ordered list of
// alternate key names, returning the stringified value of the first key whose
// value is non-empty after trimming. Candidate order is significant: backends
// disagree on snake/camel casing and field naming across versions, and each
// call site encodes its own precedence. A nil or missing mapping yields the
// default.
func Field(m map[string]any, keys []string, def string) string {
	if m == nil {
		return def
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(Stringify(v))
		if s != "" {
			return s
		}
	}
	return def
}

// Stringify renders a backend value for display. Maps and slices are JSON
// encoded; numbers drop a trailing ".0" so integral scores read as integers.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Number coerces a backend value to a float64. Backends emit scores as JSON
// numbers, quoted strings, and occasionally strings with trailing units, so
// a leading-numeric-substring parse is also attempted.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return leadingNumber(s)
	default:
		return 0, false
	}
}

// NumberField searches an ordered list of alternate keys for a numeric value.
func NumberField(m map[string]any, keys []string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := Number(v); ok {
			return f, true
		}
	}
	return 0, false
}

// leadingNumber parses the longest numeric prefix of s, e.g. "85%" -> 85.
func leadingNumber(s string) (float64, bool) {
	end := 0
	seenDigit := false
	for i, r := range s {
		if r >= '0' && r <= '9' {
			seenDigit = true
			end = i + 1
			continue
		}
		if (r == '-' || r == '+') && i == 0 {
			end = i + 1
			continue
		}
		if r == '.' && seenDigit {
			end = i + 1
			continue
		}
		break
	}
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
