package derive

import (
	"math"
)

// Confidence field aliases, in precedence order. The fraud payload is
// searched before the record itself.
var confidenceKeys = []string{
	"confidence",
	"confidence_score",
	"confidenceScore",
	"model_confidence",
	"conf",
}

// NormalizeConfidence derives a 0-100 integer confidence from a raw record
// and its nested fraud payload. Backends report confidence on two scales —
// already-normalized (0-100) and fractional (0-1] — and sometimes not at all,
// in which case it is derived from the fraud score.
//
// A found fractional value is scaled by 100 and then re-checked: if the
// result is still <= 1 the field was degenerate (a fraction of a fraction)
// and the fraud-score fallback applies. The re-check is deliberate; it guards
// against backends that report fractional values inconsistently.
func NormalizeConfidence(record, fraud map[string]any, fraudScore int) int {
	v, ok := NumberField(fraud, confidenceKeys)
	if !ok {
		v, ok = NumberField(record, confidenceKeys)
	}
	if !ok {
		return confidenceFromScore(fraudScore)
	}

	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	if v <= 1 {
		return confidenceFromScore(fraudScore)
	}
	return int(math.Round(v))
}

// confidenceFromScore is the three-tier fraud-score fallback. The 60/75/90
// mapping is a backend heuristic preserved as observed.
func confidenceFromScore(score int) int {
	switch {
	case score > 70:
		return 90
	case score > 30:
		return 75
	default:
		return 60
	}
}
