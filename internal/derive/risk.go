package derive

import (
	"math"
	"strings"

	"github.com/securekyc/kestrel/internal/domain"
)

// ClampScore bounds a fraud score to [0,100].
func ClampScore(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

// ClassifyScore maps a fraud score to its risk bucket. Scores are clamped
// first. Boundary values belong to the lower band: 70 is Medium, 30 is Low.
func ClassifyScore(score float64) domain.RiskLevel {
	s := ClampScore(score)
	switch {
	case s > 70:
		return domain.RiskHigh
	case s > 30:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ClassifyLabel classifies a free-form risk string. An embedded risk word
// takes precedence over any number in the same string; only when no word is
// found is a leading numeric substring parsed and reclassified by the score
// thresholds. Anything else defaults to Low.
func ClassifyLabel(label string) domain.RiskLevel {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "high"):
		return domain.RiskHigh
	case strings.Contains(l, "medium"), strings.Contains(l, "med"):
		return domain.RiskMedium
	case strings.Contains(l, "low"):
		return domain.RiskLow
	}
	if f, ok := leadingNumber(strings.TrimSpace(label)); ok {
		return ClassifyScore(f)
	}
	return domain.RiskLow
}
