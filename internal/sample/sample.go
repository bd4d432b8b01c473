// Package sample provides the named fallback dataset shown when the KYC
// service is unreachable and no last-known-good snapshot exists. The records
// intentionally mirror real backend payload shapes, alias quirks included.
package sample

import "github.com/securekyc/kestrel/internal/domain"

// Records returns a fresh copy of the fallback dataset. Callers may mutate
// the result freely.
func Records() []domain.RawRecord {
	return []domain.RawRecord{
		{
			"_id":            "SAMPLE-001",
			"user_name":      "Ravi Sharma",
			"aadhaar_number": "234567890123",
			"pan_number":     "FGHIJ5678K",
			"status":         "Pending",
			"timestamp":      "2025-11-14T09:12:45+05:30",
			"fraud_result": map[string]any{
				"fraud_score": float64(12),
				"confidence":  0.93,
			},
		},
		{
			"_id":            "SAMPLE-002",
			"customer_name":  "Meera Pillai",
			"aadhaar_masked": "3456 7890 1234",
			"pan_number":     "KLMNO9012P",
			"status":         "Pending",
			"created_at":     "2025-11-14T10:02:13+05:30",
			"fraud_result": map[string]any{
				"fraud_score": float64(55),
				"flags":       []any{"name_mismatch"},
			},
		},
		{
			"_id":            "SAMPLE-003",
			"user_name":      "Arjun Nair",
			"aadhaar_number": "456789012345",
			"pan_number":     "QRSTU3456V",
			"status":         "Flagged",
			"timestamp":      "2025-11-14T11:45:02+05:30",
			"fraud_result": map[string]any{
				"fraud_score": float64(88),
				"flags":       []any{"duplicate_pan", "duplicate_aadhaar"},
				"confidence":  float64(96),
			},
			"pan_ocr": map[string]any{"name": "Arjun Nair"},
		},
	}
}
