package fetcher

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// applyResponses folds the responses collected for kind into facts,
// tagging confidence: MISSING when nothing answered, MEDIUM for a single
// source, and HIGH, MEDIUM or LOW depending on how closely two
// independent sources agree (used for liquidity and holder
// concentration).
func applyResponses(facts *models.TokenFacts, kind models.DataKind, responses []*models.ProviderResponse) {
	if len(responses) == 0 {
		markMissing(facts, kind)
		return
	}

	switch kind {
	case models.KindIdentity:
		facts.Identity = models.Tagged[models.TokenIdentity]{
			Value:      decodeIdentity(responses[0].Payload),
			Source:     responses[0].ProviderID,
			Confidence: singleOrHigh(responses),
		}
	case models.KindAuthorities:
		facts.Authorities = models.Tagged[models.TokenAuthorities]{
			Value:      decodeAuthorities(responses[0].Payload),
			Source:     responses[0].ProviderID,
			Confidence: singleOrHigh(responses),
		}
	case models.KindLiquidity:
		facts.Liquidity = crossValidateLiquidity(responses)
	case models.KindHolders:
		facts.Distribution = crossValidateDistribution(responses)
	case models.KindHoneypot:
		facts.Trading = models.Tagged[models.TradingInfo]{
			Value:      decodeTrading(responses[0].Payload),
			Source:     responses[0].ProviderID,
			Confidence: singleOrHigh(responses),
		}
	case models.KindCreatorHistory:
		facts.Provenance = models.Tagged[models.ProvenanceInfo]{
			Value:      decodeProvenance(responses[0].Payload),
			Source:     responses[0].ProviderID,
			Confidence: singleOrHigh(responses),
		}
	case models.KindVerification, models.KindSocial:
		merged := facts.Verification.Value
		applyVerificationFields(&merged, responses[0].Payload, kind)
		facts.Verification = models.Tagged[models.VerificationInfo]{
			Value:      merged,
			Source:     responses[0].ProviderID,
			Confidence: singleOrHigh(responses),
		}
	}
}

func markMissing(facts *models.TokenFacts, kind models.DataKind) {
	switch kind {
	case models.KindIdentity:
		facts.Identity = models.Missing[models.TokenIdentity]()
	case models.KindAuthorities:
		facts.Authorities = models.Missing[models.TokenAuthorities]()
	case models.KindLiquidity:
		facts.Liquidity = models.Missing[models.LiquidityInfo]()
	case models.KindHolders:
		facts.Distribution = models.Missing[models.DistributionInfo]()
	case models.KindHoneypot:
		facts.Trading = models.Missing[models.TradingInfo]()
	case models.KindCreatorHistory:
		facts.Provenance = models.Missing[models.ProvenanceInfo]()
	case models.KindVerification, models.KindSocial:
		if facts.Verification.Confidence == "" {
			facts.Verification = models.Missing[models.VerificationInfo]()
		}
	}
}

func singleOrHigh(responses []*models.ProviderResponse) models.Confidence {
	if len(responses) == 1 {
		return models.ConfidenceMedium
	}
	return models.ConfidenceHigh
}

func num(payload any, key string) (float64, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func str(payload any, key string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolean(payload any, key string) bool {
	m, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func decodeIdentity(payload any) models.TokenIdentity {
	supply, _ := num(payload, "totalSupply")
	return models.TokenIdentity{
		Name:        str(payload, "name"),
		Symbol:      str(payload, "symbol"),
		Decimals:    int(mustNum(payload, "decimals")),
		TotalSupply: decimal.NewFromFloat(supply),
		CreatorAddr: str(payload, "creator"),
		DeployTime:  deployTimeOf(payload),
	}
}

// deployTimeOf decodes a unix-seconds "deployTime" field, returning the
// zero time when absent so the token-age metric correctly reports
// MISSING rather than fabricating an age of zero.
func deployTimeOf(payload any) time.Time {
	secs, ok := num(payload, "deployTime")
	if !ok || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

func mustNum(payload any, key string) float64 {
	v, _ := num(payload, key)
	return v
}

func decodeAuthorities(payload any) models.TokenAuthorities {
	return models.TokenAuthorities{
		MintAuthorityRevoked:   boolean(payload, "mintAuthorityRevoked"),
		FreezeAuthorityRevoked: boolean(payload, "freezeAuthorityRevoked"),
		OwnershipRenounced:     boolean(payload, "ownershipRenounced"),
		HiddenMintDetected:     boolean(payload, "hiddenMintDetected"),
		TransferDisabled:       boolean(payload, "transferDisabled"),
	}
}

func decodeTrading(payload any) models.TradingInfo {
	buyTax, _ := num(payload, "buyTaxPercent")
	sellTax, _ := num(payload, "sellTaxPercent")
	return models.TradingInfo{
		BuyTaxPercent:  buyTax,
		SellTaxPercent: sellTax,
		Honeypot:       boolean(payload, "honeypot"),
	}
}

func decodeProvenance(payload any) models.ProvenanceInfo {
	priorRugs, _ := num(payload, "priorRugs")
	return models.ProvenanceInfo{
		CreatorAddress:   str(payload, "creator"),
		CreatorPriorRugs: int(priorRugs),
		DeployTime:       deployTimeOf(payload),
	}
}

func applyVerificationFields(v *models.VerificationInfo, payload any, kind models.DataKind) {
	switch kind {
	case models.KindVerification:
		v.SourceVerified = boolean(payload, "verified")
	case models.KindSocial:
		v.SocialPresence = boolean(payload, "hasSocialPresence")
	}
}

const (
	crossValidateHighTolerance   = 0.10 // relative delta at/below which sources agree strongly
	crossValidateMediumTolerance = 0.30 // relative delta at/below which sources partially agree
)

// crossValidateNumeric resolves two independent readings of the same
// quantity into one value plus a confidence tier: sources within 10%
// relative delta are averaged at HIGH confidence, within 30% fall back to
// the lower (conservative) reading at MEDIUM confidence, and beyond that
// the lower reading is kept at LOW confidence since the sources disagree
// enough that neither can be trusted at face value.
func crossValidateNumeric(a, b float64) (float64, models.Confidence) {
	lower := math.Min(a, b)
	switch delta := relDelta(a, b); {
	case delta <= crossValidateHighTolerance:
		return (a + b) / 2, models.ConfidenceHigh
	case delta <= crossValidateMediumTolerance:
		return lower, models.ConfidenceMedium
	default:
		return lower, models.ConfidenceLow
	}
}

func relDelta(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

func crossValidateLiquidity(responses []*models.ProviderResponse) models.Tagged[models.LiquidityInfo] {
	first := decodeLiquidity(responses[0].Payload)
	if len(responses) == 1 {
		return models.Tagged[models.LiquidityInfo]{Value: first, Source: responses[0].ProviderID, Confidence: models.ConfidenceMedium}
	}

	second := decodeLiquidity(responses[1].Payload)
	a, _ := first.USDDepth.Float64()
	b, _ := second.USDDepth.Float64()
	resolved, confidence := crossValidateNumeric(a, b)

	merged := first
	merged.USDDepth = decimal.NewFromFloat(resolved)
	return models.Tagged[models.LiquidityInfo]{
		Value:      merged,
		Source:     responses[0].ProviderID + "+" + responses[1].ProviderID,
		Confidence: confidence,
	}
}

func crossValidateDistribution(responses []*models.ProviderResponse) models.Tagged[models.DistributionInfo] {
	first := decodeDistribution(responses[0].Payload)
	if len(responses) == 1 {
		return models.Tagged[models.DistributionInfo]{Value: first, Source: responses[0].ProviderID, Confidence: models.ConfidenceMedium}
	}

	second := decodeDistribution(responses[1].Payload)
	resolved, confidence := crossValidateNumeric(first.Top10HolderPercent, second.Top10HolderPercent)

	merged := first
	merged.Top10HolderPercent = resolved
	return models.Tagged[models.DistributionInfo]{
		Value:      merged,
		Source:     responses[0].ProviderID + "+" + responses[1].ProviderID,
		Confidence: confidence,
	}
}

func decodeLiquidity(payload any) models.LiquidityInfo {
	depth, _ := num(payload, "usdDepth")
	volume, _ := num(payload, "volume24hUsd")
	lockPct, _ := num(payload, "lpLockPercent")
	pools, _ := num(payload, "poolCount")
	return models.LiquidityInfo{
		USDDepth:      decimal.NewFromFloat(depth),
		LPLockPercent: lockPct,
		PoolCount:     int(pools),
		Volume24hUSD:  decimal.NewFromFloat(volume),
	}
}

func decodeDistribution(payload any) models.DistributionInfo {
	top10, _ := num(payload, "top10HolderPercent")
	unique, _ := num(payload, "uniqueHolderCount")
	return models.DistributionInfo{
		Top10HolderPercent: top10,
		UniqueHolderCount:  int(unique),
	}
}
