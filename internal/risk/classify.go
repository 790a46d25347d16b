package risk

import "github.com/rawblock/token-risk-guard/pkg/models"

// classifyScore maps a 0-100 safety score to a category using a
// threshold-switch, with bands running from safest (highest score) to
// most severe (lowest).
func classifyScore(score int) models.Category {
	switch {
	case score >= 80:
		return models.CategorySafe
	case score >= 60:
		return models.CategoryCaution
	case score >= 30:
		return models.CategoryHighRisk
	default:
		return models.CategoryLikelyScam
	}
}

// Classify produces the final RiskScore category from a score, its
// scorability, and any triggered overrides. Overrides can only push the
// category toward greater severity, never lighten it.
func Classify(score int, scorable bool, overrides []models.Override) models.Category {
	if !scorable {
		return models.CategoryUnscorable
	}

	category := classifyScore(score)
	for _, o := range overrides {
		category = models.Worse(category, o.ForcedCategory)
	}
	return category
}
