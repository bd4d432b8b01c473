package derive

import "testing"

func TestMaskNationalID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"123456789012", "1234-XXXX-9012"},
		{"1234 5678 9012", "1234-XXXX-9012"},
		{"1234567", "1234567"}, // too few digits, unchanged
		{"12345678", "1234-XXXX-5678"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskNationalID(tt.in); got != tt.want {
			t.Errorf("MaskNationalID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskTaxID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ABCDE1234F", "ABCDE-XX4F"},
		{"ABCDE 1234F", "ABCDE-XX4F"},
		{"ABC123", "ABC123"}, // wrong length, unchanged
		{"ABCDE1234FX", "ABCDE1234FX"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskTaxID(tt.in); got != tt.want {
			t.Errorf("MaskTaxID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
