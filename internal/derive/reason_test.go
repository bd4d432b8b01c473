package derive

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildReason(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		fraud  map[string]any
		want   string
	}{
		{
			name:  "flags_text verbatim",
			fraud: map[string]any{"flags_text": "Suspicious velocity"},
			want:  "Suspicious velocity",
		},
		{
			name: "risk label in flags_text is skipped",
			fraud: map[string]any{
				"flags_text": "high",
				"flags":      []any{"duplicate_pan"},
			},
			want: "Duplicate PAN detected",
		},
		{
			name: "flag codes joined in fixed order",
			fraud: map[string]any{
				"flags": []any{"duplicate_pan", "name_mismatch", "bogus_code"},
			},
			want: "Name on document does not closely match user input, Duplicate PAN detected",
		},
		{
			name: "duplicate codes collapse",
			fraud: map[string]any{
				"flag_codes": []any{"duplicate_aadhaar", "duplicate_aadhaar"},
			},
			want: "Duplicate Aadhaar detected",
		},
		{
			name:   "record-level flags honored",
			record: map[string]any{"flags": []any{"duplicate_submission"}},
			want:   "Duplicate submission detected",
		},
		{
			name:  "free-text reason fields",
			fraud: map[string]any{"reason": "manual hold"},
			record: map[string]any{
				"notes": "resubmitted twice",
			},
			want: "manual hold, resubmitted twice",
		},
		{
			name:  "reasons array",
			fraud: map[string]any{"reasons": []any{"blurry image", "name mismatch"}},
			want:  "blurry image, name mismatch",
		},
		{
			name: "empty everything yields default",
			want: DefaultReason,
		},
		{
			name:   "whitespace-only flags_text ignored",
			record: map[string]any{"flags_text": "   "},
			want:   DefaultReason,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildReason(tt.record, tt.fraud); got != tt.want {
				t.Errorf("BuildReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateReason(t *testing.T) {
	short := "all clear"
	if got := TruncateReason(short); got != short {
		t.Errorf("TruncateReason(%q) = %q, want unchanged", short, got)
	}

	long := strings.Repeat("x", 200)
	got := TruncateReason(long)
	if got != strings.Repeat("x", 180)+"…" {
		t.Errorf("TruncateReason long = %q, want 180 chars plus ellipsis", got)
	}

	// A multi-byte rune straddling the limit is dropped whole, never split.
	straddle := strings.Repeat("x", 179) + "データ重複"
	got = TruncateReason(straddle)
	if !utf8.ValidString(got) {
		t.Errorf("TruncateReason produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("x", 179)+"…" {
		t.Errorf("TruncateReason straddling rune = %q, want cut before the rune", got)
	}
}
