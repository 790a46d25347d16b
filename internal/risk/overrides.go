package risk

import (
	"github.com/rawblock/token-risk-guard/internal/blacklist"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

// CreatorBlacklist resolves a creator address to a known rug-pull record.
// Satisfied by *blacklist.Blacklist; a narrow interface so tests can
// supply a fake without standing up the real store-backed refresh loop.
type CreatorBlacklist interface {
	Lookup(addr string) (blacklist.Entry, bool)
}

// Override kinds, named for the condition that triggers them.
const (
	OverrideHoneypotConfirmed           = "HONEYPOT_CONFIRMED"
	OverrideTaxAsymmetry                = "TAX_ASYMMETRY"
	OverrideActiveMintPlusConcentration = "ACTIVE_MINT_PLUS_CONCENTRATION"
	OverrideNonTransferable             = "NON_TRANSFERABLE"
	OverrideCreatorPriorRug             = "CREATOR_PRIOR_RUG"
)

const (
	honeypotSellTaxThreshold   = 99.0 // sell tax %, treated as a confirmed honeypot
	taxAsymmetryPointThreshold = 10.0 // |buyTax - sellTax| percentage points
	taxAsymmetrySellFloor      = 20.0 // sellTax % required alongside the asymmetry gap
	highConcentrationThreshold = 80.0 // top-10 holder percent, strictly greater than
)

// DetectOverrides evaluates the critical-override rules against facts.
// Each rule forces a hard category ceiling rather than an additive point
// penalty, since a confirmed honeypot should never be scored merely
// "risky". Overrides are evaluated independently of the weighted
// metrics; Classify composes them by taking the most severe forced
// category among those that fire. bl is consulted once the token's
// creator address is known, here in the engine rather than at fetch
// time, since the blacklist is keyed by creator and a token's creator
// isn't resolved until provenance data comes back; bl may be nil.
func DetectOverrides(facts *models.TokenFacts, metrics []models.MetricResult, bl CreatorBlacklist) []models.Override {
	var overrides []models.Override

	if facts.Trading.Confidence != models.ConfidenceMissing {
		t := facts.Trading.Value
		if t.Honeypot || t.SellTaxPercent >= honeypotSellTaxThreshold {
			overrides = append(overrides, models.Override{
				Kind:              OverrideHoneypotConfirmed,
				TriggeringMetrics: []string{MetricHoneypot},
				ForcedCategory:    models.CategoryLikelyScam,
			})
		}

		diff := t.SellTaxPercent - t.BuyTaxPercent
		if diff < 0 {
			diff = -diff
		}
		if diff >= taxAsymmetryPointThreshold && t.SellTaxPercent > taxAsymmetrySellFloor {
			overrides = append(overrides, models.Override{
				Kind:              OverrideTaxAsymmetry,
				TriggeringMetrics: []string{MetricTaxAsymmetry},
				ForcedCategory:    models.CategoryLikelyScam,
			})
		}
	}

	if facts.Authorities.Confidence != models.ConfidenceMissing && facts.Distribution.Confidence != models.ConfidenceMissing {
		mintActive := !facts.Authorities.Value.MintAuthorityRevoked || facts.Authorities.Value.HiddenMintDetected
		concentrated := facts.Distribution.Value.Top10HolderPercent > highConcentrationThreshold
		if mintActive && concentrated {
			overrides = append(overrides, models.Override{
				Kind:              OverrideActiveMintPlusConcentration,
				TriggeringMetrics: []string{MetricMintAuthority, MetricHolderConcentration},
				ForcedCategory:    models.CategoryLikelyScam,
			})
		}
	}

	if facts.Authorities.Confidence != models.ConfidenceMissing && facts.Authorities.Value.TransferDisabled {
		overrides = append(overrides, models.Override{
			Kind:              OverrideNonTransferable,
			TriggeringMetrics: []string{MetricMintAuthority},
			ForcedCategory:    models.CategoryLikelyScam,
		})
	}

	priorRugs := 0
	if facts.Provenance.Confidence != models.ConfidenceMissing {
		priorRugs = facts.Provenance.Value.CreatorPriorRugs
	}

	creatorAddr := facts.Provenance.Value.CreatorAddress
	if creatorAddr == "" {
		creatorAddr = facts.Identity.Value.CreatorAddr
	}
	if bl != nil && creatorAddr != "" {
		if entry, blocked := bl.Lookup(creatorAddr); blocked && entry.PriorRugCount > priorRugs {
			priorRugs = entry.PriorRugCount
		}
	}

	if priorRugs > 0 {
		overrides = append(overrides, models.Override{
			Kind:              OverrideCreatorPriorRug,
			TriggeringMetrics: []string{MetricCreatorHistory},
			ForcedCategory:    models.CategoryHighRisk,
		})
	}

	return overrides
}
