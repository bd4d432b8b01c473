// Package domain defines the core interfaces and types for Kestrel.
package domain

// RawRecord is an opaque KYC record payload as returned by the backend
// document service. Field presence varies by endpoint and backend version,
// so the record is kept as a loose mapping and read through the derive
// package's alias-aware field extractor.
type RawRecord map[string]any

// FraudPayload returns the nested fraud result mapping, or nil if absent
// or not an object.
func (r RawRecord) FraudPayload() map[string]any {
	if r == nil {
		return nil
	}
	if m, ok := r["fraud_result"].(map[string]any); ok {
		return m
	}
	return nil
}

// Risk buckets derived from the fraud score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Review statuses carried on a record. Case-sensitive, set by the backend.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
	StatusFlagged  = "Flagged"
)

// Document types detected on a record.
const (
	DocTypeAadhaar = "aadhaar"
	DocTypePAN     = "pan"
	DocTypeGeneric = "document"
)

// NormalizedRow is the presentation-ready projection of one RawRecord.
// It is recomputed from scratch on every poll; nothing here is persisted
// as derived state.
type NormalizedRow struct {
	ID                 string    `json:"id"`
	UserName           string    `json:"userName"`
	MaskedAadhaar      string    `json:"maskedAadhaar"`
	MaskedPan          string    `json:"maskedPan"`
	DocType            string    `json:"docType"`
	Status             string    `json:"status"`
	RiskLevel          RiskLevel `json:"riskLevel"`
	FraudScore         int       `json:"fraudScore"`
	Confidence         int       `json:"confidence"`
	Reason             string    `json:"reason"`
	FormattedTimestamp string    `json:"formattedTimestamp"`
}
