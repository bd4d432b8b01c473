package derive

import (
	"math"

	"github.com/securekyc/kestrel/internal/domain"
)

// FallbackAggregate recomputes the risk aggregate from a raw record list,
// used when the fraud service's pre-aggregated endpoint is unavailable.
// Verified means a fraud score at or below the Low threshold. An empty list
// yields a zero mean, never a division by zero.
func FallbackAggregate(records []domain.RawRecord) domain.RiskAggregate {
	agg := domain.RiskAggregate{}
	total := 0
	for _, record := range records {
		score := normalizeScore(record, record.FraudPayload())
		total += score
		switch ClassifyScore(float64(score)) {
		case domain.RiskHigh:
			agg.RiskBuckets.High++
		case domain.RiskMedium:
			agg.RiskBuckets.Medium++
		default:
			agg.RiskBuckets.Low++
		}
		if score <= 30 {
			agg.VerifiedDocs.Verified++
		} else {
			agg.VerifiedDocs.Unverified++
		}
	}
	if len(records) > 0 {
		agg.RiskScore = int(math.Round(float64(total) / float64(len(records))))
	}
	return agg
}
