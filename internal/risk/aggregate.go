package risk

import (
	"math"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// minUsableMetrics is the floor below which a score cannot be trusted and
// the scan is marked UNSCORABLE instead of returning a misleadingly
// precise number.
const minUsableMetrics = 4

// Aggregate composes metric results into a final 0-100 score, weighting
// by each metric's realized (non-missing) weight in a clamped
// Σ(score*weight)/Σweight shape, renormalized over only the metrics that
// actually had data instead of assuming every signal is present.
func Aggregate(metrics []models.MetricResult) (score int, scorable bool) {
	usable := 0
	var weightedSum, totalWeight float64
	for _, m := range metrics {
		if m.Confidence == models.ConfidenceMissing {
			continue
		}
		usable++
		weightedSum += float64(m.Score) * m.Weight
		totalWeight += m.Weight
	}

	if usable < minUsableMetrics || totalWeight == 0 {
		return 0, false
	}

	// Ties round half-to-even so repeated rescans of borderline tokens
	// don't drift upward from systematic half-up rounding.
	raw := weightedSum / totalWeight
	return int(math.RoundToEven(clamp(raw, 0, 100))), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
