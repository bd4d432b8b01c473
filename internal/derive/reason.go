package derive

import (
	"strings"
	"unicode/utf8"
)

// DefaultReason is the fixed fallback when no signal explains a record.
const DefaultReason = "No anomalies detected for this KYC submission"

// reasonMaxDisplay is the display-truncation width for constrained UI cells.
// Truncation is a display concern only; the canonical reason (and CSV export)
// always carry the full value.
const reasonMaxDisplay = 180

// flagSentences maps structured flag codes to their display sentences.
// Unknown codes are silently dropped.
var flagSentences = map[string]string{
	"duplicate_submission":  "Duplicate submission detected",
	"name_mismatch":         "Name on document does not closely match user input",
	"duplicate_aadhaar":     "Duplicate Aadhaar detected",
	"duplicate_pan":         "Duplicate PAN detected",
	"aadhaar_pan_duplicate": "Aadhaar/PAN matches an existing record (duplicate)",
}

// flagOrder fixes the evaluation order of recognized flag codes so the joined
// sentence list is deterministic regardless of backend array ordering.
var flagOrder = []string{
	"duplicate_submission",
	"name_mismatch",
	"duplicate_aadhaar",
	"duplicate_pan",
	"aadhaar_pan_duplicate",
}

// Alternate names for the structured flag-code array.
var flagArrayKeys = []string{"flags", "flag_codes", "reason_codes"}

// Alternate names for free-text reason fields, fraud payload first.
var freeTextKeys = []string{"reason", "reasons", "description", "message", "notes"}

// BuildReason synthesizes the human-readable explanation for a record.
// Precedence is strict — the first tier producing output wins:
//
//  1. the free-text flags_text field, verbatim, unless it is merely a risk
//     label (low/medium/high) stamped where a reason belongs;
//  2. the structured flag-code array, mapped to fixed sentences;
//  3. any other free-text reason/description/message/notes fields;
//  4. the fixed default.
func BuildReason(record, fraud map[string]any) string {
	if txt := flagsText(fraud); txt != "" {
		return txt
	}
	if txt := flagsText(record); txt != "" {
		return txt
	}

	if joined := flagCodeSentences(fraud); joined != "" {
		return joined
	}
	if joined := flagCodeSentences(record); joined != "" {
		return joined
	}

	var parts []string
	parts = appendFreeText(parts, fraud)
	parts = appendFreeText(parts, record)
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	return DefaultReason
}

// TruncateReason shortens a reason for constrained table cells, appending an
// ellipsis marker. The cut lands on a rune boundary so a multi-byte character
// straddling the limit is dropped whole rather than split into invalid UTF-8.
// CSV export must not use this.
func TruncateReason(reason string) string {
	if len(reason) <= reasonMaxDisplay {
		return reason
	}
	cut := reasonMaxDisplay
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut] + "…"
}

// flagsText returns the trimmed flags_text value unless it is a bare risk
// label, which backends sometimes store in place of a real reason.
func flagsText(m map[string]any) string {
	if m == nil {
		return ""
	}
	s := strings.TrimSpace(Stringify(m["flags_text"]))
	if s == "" {
		return ""
	}
	switch strings.ToLower(s) {
	case "low", "medium", "high":
		return ""
	}
	return s
}

// flagCodeSentences maps the record's structured flag codes to display
// sentences, joined in fixed order with each sentence appearing at most once.
func flagCodeSentences(m map[string]any) string {
	if m == nil {
		return ""
	}
	present := map[string]bool{}
	for _, key := range flagArrayKeys {
		arr, ok := m[key].([]any)
		if !ok {
			continue
		}
		for _, v := range arr {
			code, ok := v.(string)
			if !ok {
				continue
			}
			if _, known := flagSentences[strings.TrimSpace(code)]; known {
				present[strings.TrimSpace(code)] = true
			}
		}
	}
	if len(present) == 0 {
		return ""
	}
	var sentences []string
	for _, code := range flagOrder {
		if present[code] {
			sentences = append(sentences, flagSentences[code])
		}
	}
	return strings.Join(sentences, ", ")
}

func appendFreeText(parts []string, m map[string]any) []string {
	if m == nil {
		return parts
	}
	for _, key := range freeTextKeys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		// reasons may arrive as an array of strings
		if arr, ok := v.([]any); ok {
			for _, item := range arr {
				if s := strings.TrimSpace(Stringify(item)); s != "" {
					parts = append(parts, s)
				}
			}
			continue
		}
		if _, isMap := v.(map[string]any); isMap {
			continue
		}
		if s := strings.TrimSpace(Stringify(v)); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
