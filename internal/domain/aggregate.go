package domain

import (
	"time"
)

// RiskBuckets holds per-bucket record counts.
type RiskBuckets struct {
	Low    int `json:"Low"`
	Medium int `json:"Medium"`
	High   int `json:"High"`
}

// VerifiedDocs splits documents by the verification threshold
// (fraud score <= 30 counts as verified).
type VerifiedDocs struct {
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
}

// RiskAggregate is the platform-wide summary consumed by dashboard tiles.
// It comes from the fraud service's pre-aggregated endpoint when reachable,
// otherwise from the fallback calculator over the raw record list.
type RiskAggregate struct {
	RiskBuckets  RiskBuckets  `json:"riskBuckets"`
	VerifiedDocs VerifiedDocs `json:"verifiedDocs"`
	RiskScore    int          `json:"riskScore"`
}

// AuditEvent is one entry of the backend audit trail.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"` // success | warning | error | info
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// AnalyzeResult is the response of the fraud pipeline's synchronous
// verification endpoint.
type AnalyzeResult struct {
	FraudScore int      `json:"fraud_score"`
	RiskLevel  string   `json:"risk_level"`
	Decision   string   `json:"decision"`
	Reasons    []string `json:"reasons"`
}

// Snapshot is the full in-memory state produced by one poll cycle.
// Each cycle replaces the previous snapshot wholesale; there is no
// incremental update.
type Snapshot struct {
	ID        string          `json:"id"`
	Records   []RawRecord     `json:"records"`
	Rows      []NormalizedRow `json:"rows"`
	Aggregate RiskAggregate   `json:"aggregate"`

	// AggregateFallback is true when the fraud service was unreachable
	// and the aggregate was recomputed locally from Records.
	AggregateFallback bool `json:"aggregateFallback"`

	// SampleData is true when the record list itself came from the named
	// sample dataset because the KYC service was unreachable and no
	// last-known-good snapshot existed.
	SampleData bool `json:"sampleData"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// ActionLog records one console review action (approve / reject / flag)
// for the local operational audit trail.
type ActionLog struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"recordId"`
	Action    string    `json:"action"`
	Role      string    `json:"role"`
	Outcome   string    `json:"outcome"` // ok | failed
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TriageRule is an analyst-defined CEL filter over normalized case rows.
type TriageRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
