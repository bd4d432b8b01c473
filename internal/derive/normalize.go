package derive

import (
	"github.com/securekyc/kestrel/internal/domain"
)

// Alias key lists for the normalizer. Order is significant: the first present,
// non-empty key wins.
var (
	idKeys        = []string{"_id", "id", "record_id", "kyc_id"}
	userNameKeys  = []string{"user_name", "customer_name", "name"}
	aadhaarKeys   = []string{"aadhaar_number", "aadhaar_masked"}
	panKeys       = []string{"pan_number", "pan_masked"}
	timestampKeys = []string{"timestamp", "createdAt", "created_at"}
	scoreKeys     = []string{"fraud_score", "score", "risk_score"}
)

// Normalize transforms one raw backend record into a presentation-ready row.
// It is total and idempotent: any input shape resolves to a defined row, and
// the same record always yields a byte-identical result.
func Normalize(record domain.RawRecord) domain.NormalizedRow {
	m := map[string]any(record)
	fraud := record.FraudPayload()

	score := normalizeScore(m, fraud)

	aadhaar := Field(m, aadhaarKeys, "")
	pan := Field(m, panKeys, "")

	row := domain.NormalizedRow{
		ID:            Field(m, idKeys, "N/A"),
		UserName:      Field(m, userNameKeys, "N/A"),
		MaskedAadhaar: maskOrPlaceholder(aadhaar, MaskNationalID),
		MaskedPan:     maskOrPlaceholder(pan, MaskTaxID),
		DocType:       DetectDocType(m, fraud),
		Status:        Field(m, []string{"status"}, domain.StatusPending),
		RiskLevel:     ClassifyScore(float64(score)),
		FraudScore:    score,
		Confidence:    NormalizeConfidence(m, fraud, score),
		Reason:        BuildReason(m, fraud),
	}

	if ts, ok := firstPresent(m, timestampKeys); ok {
		row.FormattedTimestamp = FormatTimestamp(ts)
	} else {
		row.FormattedTimestamp = MissingTimestamp
	}

	return row
}

// NormalizeAll maps a raw record list to rows, preserving order.
func NormalizeAll(records []domain.RawRecord) []domain.NormalizedRow {
	rows := make([]domain.NormalizedRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, Normalize(r))
	}
	return rows
}

// normalizeScore resolves the fraud score, preferring the nested fraud
// payload, clamped to [0,100] with absent or unparseable input as 0.
func normalizeScore(record, fraud map[string]any) int {
	if n, ok := NumberField(fraud, scoreKeys); ok {
		return ClampScore(n)
	}
	if n, ok := NumberField(record, scoreKeys); ok {
		return ClampScore(n)
	}
	return 0
}

func maskOrPlaceholder(raw string, mask func(string) string) string {
	if raw == "" {
		return "N/A"
	}
	return mask(raw)
}

// firstPresent returns the first raw (unstringified) value among the keys.
func firstPresent(m map[string]any, keys []string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
