// Package risk implements the weighted risk-scoring engine (C4): twelve
// chain-aware metric analyzers, a realized-weight aggregator, the
// critical-override rules, and the final SAFE..LIKELY_SCAM/UNSCORABLE
// classifier.
package risk

import (
	"time"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// Metric names, referenced by both analyzers and overrides.
const (
	MetricLiquidityDepth      = "liquidity_depth"
	MetricLPLock              = "lp_lock"
	MetricHolderConcentration = "holder_concentration"
	MetricMintAuthority       = "mint_authority"
	MetricFreezeAuthority     = "freeze_authority"
	MetricHoneypot            = "honeypot"
	MetricTaxAsymmetry        = "tax_asymmetry"
	MetricTokenAge            = "token_age"
	MetricCreatorHistory      = "creator_history"
	MetricSocialPresence      = "social_presence"
	MetricVolumeLiquidity     = "volume_liquidity_ratio"
	MetricVerification        = "source_verification"
)

// solanaWeights is the per-chain weight table for Solana tokens. A weight
// of 0 marks a metric not applicable to that chain (e.g. source
// verification on Solana); the analyzer for that metric returns
// Confidence MISSING so the realized-weight aggregator excludes it from
// the denominator exactly like genuinely absent data.
var solanaWeights = map[string]float64{
	MetricLiquidityDepth:      0.20,
	MetricLPLock:              0.15,
	MetricHolderConcentration: 0.15,
	MetricMintAuthority:       0.12,
	MetricFreezeAuthority:     0.12,
	MetricHoneypot:            0.10,
	MetricTaxAsymmetry:        0.05,
	MetricTokenAge:            0.03,
	MetricCreatorHistory:      0.05,
	MetricSocialPresence:      0.02,
	MetricVolumeLiquidity:     0.01,
	MetricVerification:        0,
}

// evmWeights applies to ETHEREUM, BASE, BSC, and POLYGON alike; the
// table deliberately sums to 1.05 rather than exactly 1.0, relying on
// runtime normalization over realized weight instead of hand-tuning the
// table to a precise total.
var evmWeights = map[string]float64{
	MetricLiquidityDepth:      0.15,
	MetricLPLock:              0.20,
	MetricHolderConcentration: 0.10,
	MetricMintAuthority:       0.15,
	MetricFreezeAuthority:     0,
	MetricHoneypot:            0.15,
	MetricTaxAsymmetry:        0.10,
	MetricTokenAge:            0.05,
	MetricCreatorHistory:      0.05,
	MetricSocialPresence:      0.02,
	MetricVolumeLiquidity:     0.03,
	MetricVerification:        0.05,
}

func weightsFor(chain models.Chain) map[string]float64 {
	if chain == models.ChainSolana {
		return solanaWeights
	}
	return evmWeights
}

// Analyze runs all twelve metric analyzers against facts, parameterized
// by chain, and returns their results. A metric whose backing data is
// MISSING — or that does not apply to this chain — is still returned,
// with Confidence MISSING and Weight 0, so the aggregator excludes it
// from the realized-weight denominator instead of penalizing it.
func Analyze(chain models.Chain, facts *models.TokenFacts) []models.MetricResult {
	w := weightsFor(chain)
	// A tag whose confidence was never set carries no fetched data, so it
	// counts as MISSING like an explicitly missing one.
	f := *facts
	f.Identity, f.Authorities = orMissing(f.Identity), orMissing(f.Authorities)
	f.Liquidity, f.Distribution = orMissing(f.Liquidity), orMissing(f.Distribution)
	f.Trading, f.Provenance = orMissing(f.Trading), orMissing(f.Provenance)
	f.Verification = orMissing(f.Verification)
	facts = &f
	return []models.MetricResult{
		analyzeLiquidityDepth(facts, w),
		analyzeLPLock(facts, w),
		analyzeHolderConcentration(facts, w),
		analyzeMintAuthority(facts, w, chain),
		analyzeFreezeAuthority(facts, w, chain),
		analyzeHoneypot(facts, w),
		analyzeTaxAsymmetry(facts, w),
		analyzeTokenAge(facts, w),
		analyzeCreatorHistory(facts, w),
		analyzeSocialPresence(facts, w),
		analyzeVolumeLiquidity(facts, w),
		analyzeVerification(facts, w, chain),
	}
}

func orMissing[T any](t models.Tagged[T]) models.Tagged[T] {
	if t.Confidence == "" {
		t.Confidence = models.ConfidenceMissing
	}
	return t
}

func missingMetric(name, reason string) models.MetricResult {
	return models.MetricResult{Name: name, Confidence: models.ConfidenceMissing, Explanation: reason}
}

func effectiveWeight(base float64, conf models.Confidence) float64 {
	if conf == models.ConfidenceMissing || base == 0 {
		return 0
	}
	return base
}

// lerp linearly interpolates between two (x, score) anchor points.
func lerp(x, x0, y0, x1, y1 float64) float64 {
	if x1 == x0 {
		return y1
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

func clampRound(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// scoreLiquidityDepth is a piecewise linear curve: 100 at/above $100k,
// linear to 60 at $20k, linear to 20 at $5k, 0 below $5k.
func scoreLiquidityDepth(usd float64) int {
	switch {
	case usd >= 100000:
		return 100
	case usd >= 20000:
		return int(clampRound(lerp(usd, 20000, 60, 100000, 100)))
	case usd >= 5000:
		return int(clampRound(lerp(usd, 5000, 20, 20000, 60)))
	default:
		return 0
	}
}

func analyzeLiquidityDepth(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Liquidity
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricLiquidityDepth, "liquidity data unavailable")
	}
	depth, _ := tag.Value.USDDepth.Float64()
	score := scoreLiquidityDepth(depth)
	return models.MetricResult{
		Name: MetricLiquidityDepth, RawValue: depth, Score: score,
		Weight:      effectiveWeight(w[MetricLiquidityDepth], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "pooled USD liquidity depth",
	}
}

// scoreLPLock is a tiered curve over the percentage of LP tokens locked,
// using the same discrete-band style as the other non-interpolated
// metrics below.
func scoreLPLock(pct float64) int {
	switch {
	case pct >= 90:
		return 100
	case pct >= 50:
		return 70
	case pct >= 10:
		return 30
	default:
		return 5
	}
}

func analyzeLPLock(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Liquidity
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricLPLock, "liquidity data unavailable")
	}
	pct := tag.Value.LPLockPercent
	return models.MetricResult{
		Name: MetricLPLock, RawValue: pct, Score: scoreLPLock(pct),
		Weight:      effectiveWeight(w[MetricLPLock], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "liquidity pool lock percentage",
	}
}

// scoreHolderConcentration is a piecewise linear curve: 100 at/below 20%,
// linear to 60 at 40%, linear to 20 at 60%, 0 above 80%.
func scoreHolderConcentration(pct float64) int {
	switch {
	case pct <= 20:
		return 100
	case pct <= 40:
		return int(clampRound(lerp(pct, 20, 100, 40, 60)))
	case pct <= 60:
		return int(clampRound(lerp(pct, 40, 60, 60, 20)))
	case pct <= 80:
		return int(clampRound(lerp(pct, 60, 20, 80, 0)))
	default:
		return 0
	}
}

func analyzeHolderConcentration(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Distribution
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricHolderConcentration, "holder data unavailable")
	}
	pct := tag.Value.Top10HolderPercent
	return models.MetricResult{
		Name: MetricHolderConcentration, RawValue: pct, Score: scoreHolderConcentration(pct),
		Weight:      effectiveWeight(w[MetricHolderConcentration], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "percent supply held by top 10 wallets",
	}
}

// analyzeMintAuthority covers Solana's literal mint authority and EVM's
// hidden-mint bytecode check — two different signals feeding the same
// metric slot.
func analyzeMintAuthority(f *models.TokenFacts, w map[string]float64, chain models.Chain) models.MetricResult {
	tag := f.Authorities
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricMintAuthority, "authority data unavailable")
	}
	var score int
	var explanation string
	if chain.IsEVM() {
		if tag.Value.HiddenMintDetected {
			score, explanation = 0, "hidden/obfuscated mint function detected in bytecode"
		} else {
			score, explanation = 100, "no hidden mint function detected"
		}
	} else {
		if tag.Value.MintAuthorityRevoked {
			score, explanation = 100, "mint authority revoked"
		} else {
			score, explanation = 0, "mint authority still active — supply can be inflated at will"
		}
	}
	return models.MetricResult{
		Name: MetricMintAuthority, Score: score,
		Weight:      effectiveWeight(w[MetricMintAuthority], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: explanation,
	}
}

// analyzeFreezeAuthority applies only to Solana; EVM tokens have no
// equivalent account-freeze capability, so this returns MISSING on EVM
// chains to drop out of the realized-weight denominator.
func analyzeFreezeAuthority(f *models.TokenFacts, w map[string]float64, chain models.Chain) models.MetricResult {
	if chain.IsEVM() {
		return missingMetric(MetricFreezeAuthority, "not applicable on EVM chains")
	}
	tag := f.Authorities
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricFreezeAuthority, "authority data unavailable")
	}
	score, explanation := 100, "freeze authority revoked"
	if !tag.Value.FreezeAuthorityRevoked {
		score, explanation = 20, "freeze authority still active — holder accounts can be frozen"
	}
	return models.MetricResult{
		Name: MetricFreezeAuthority, Score: score,
		Weight:      effectiveWeight(w[MetricFreezeAuthority], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: explanation,
	}
}

func analyzeHoneypot(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Trading
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricHoneypot, "trade simulation unavailable")
	}
	score, explanation := 100, "sell simulation succeeded"
	if tag.Value.Honeypot || tag.Value.SellTaxPercent >= 99 {
		score, explanation = 0, "sell simulation failed or sell tax near 100% — confirmed honeypot"
	}
	return models.MetricResult{
		Name: MetricHoneypot, Score: score,
		Weight:      effectiveWeight(w[MetricHoneypot], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: explanation,
	}
}

// scoreTaxAsymmetry scores the |buyTax - sellTax| gap: 100 at/below 2
// points, linear down to 0 at/above 20 points. The TAX_ASYMMETRY
// override in overrides.go (10-point gap with sell tax above 20%) can
// fire where this curve still scores 55 (a 10-point gap); the metric
// score and the override are separate signals.
func scoreTaxAsymmetry(diff float64) int {
	switch {
	case diff <= 2:
		return 100
	case diff >= 20:
		return 0
	default:
		return int(clampRound(lerp(diff, 2, 100, 20, 0)))
	}
}

func analyzeTaxAsymmetry(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Trading
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricTaxAsymmetry, "trade simulation unavailable")
	}
	diff := tag.Value.SellTaxPercent - tag.Value.BuyTaxPercent
	if diff < 0 {
		diff = -diff
	}
	return models.MetricResult{
		Name: MetricTaxAsymmetry, RawValue: diff, Score: scoreTaxAsymmetry(diff),
		Weight:      effectiveWeight(w[MetricTaxAsymmetry], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "asymmetry between simulated buy and sell tax",
	}
}

// scoreTokenAge scores deploy age: under 24h is risky, growing
// monotonically up to 30 days.
func scoreTokenAge(age time.Duration) int {
	hours := age.Hours()
	switch {
	case hours < 24:
		return int(clampRound(lerp(hours, 0, 0, 24, 20)))
	case hours < 30*24:
		return int(clampRound(lerp(hours, 24, 20, 30*24, 100)))
	default:
		return 100
	}
}

func analyzeTokenAge(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Identity
	if tag.Confidence == models.ConfidenceMissing || tag.Value.DeployTime.IsZero() {
		return missingMetric(MetricTokenAge, "deploy time unavailable")
	}
	age := time.Since(tag.Value.DeployTime)
	return models.MetricResult{
		Name: MetricTokenAge, RawValue: age.Hours(), Score: scoreTokenAge(age),
		Weight:      effectiveWeight(w[MetricTokenAge], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "time since deployment",
	}
}

func analyzeCreatorHistory(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Provenance
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricCreatorHistory, "creator history unavailable")
	}
	n := tag.Value.CreatorPriorRugs
	var score int
	switch {
	case n == 0:
		score = 100
	case n == 1:
		score = 40
	default:
		score = 0
	}
	return models.MetricResult{
		Name: MetricCreatorHistory, RawValue: float64(n), Score: score,
		Weight:      effectiveWeight(w[MetricCreatorHistory], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "creator's prior rug-pull count",
	}
}

func analyzeSocialPresence(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Verification
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricSocialPresence, "social data unavailable")
	}
	score, explanation := 40, "no social presence detected"
	if tag.Value.SocialPresence {
		score, explanation = 100, "social presence detected"
	}
	return models.MetricResult{
		Name: MetricSocialPresence, Score: score,
		Weight:      effectiveWeight(w[MetricSocialPresence], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: explanation,
	}
}

// scoreVolumeLiquidity scores the 24h-volume-over-liquidity ratio: a
// ratio between 0.1 and 10 is healthy, extremes in either direction
// reduce the score.
func scoreVolumeLiquidity(ratio float64) int {
	switch {
	case ratio >= 0.1 && ratio <= 10:
		return 100
	case ratio < 0.1:
		if ratio <= 0 {
			return 20
		}
		return int(clampRound(lerp(ratio, 0, 20, 0.1, 100)))
	case ratio >= 50:
		return 10
	default:
		return int(clampRound(lerp(ratio, 10, 100, 50, 10)))
	}
}

func analyzeVolumeLiquidity(f *models.TokenFacts, w map[string]float64) models.MetricResult {
	tag := f.Liquidity
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricVolumeLiquidity, "liquidity data unavailable")
	}
	depth, _ := tag.Value.USDDepth.Float64()
	if depth <= 0 {
		return missingMetric(MetricVolumeLiquidity, "zero liquidity depth, ratio undefined")
	}
	volume, _ := tag.Value.Volume24hUSD.Float64()
	ratio := volume / depth
	return models.MetricResult{
		Name: MetricVolumeLiquidity, RawValue: ratio, Score: scoreVolumeLiquidity(ratio),
		Weight:      effectiveWeight(w[MetricVolumeLiquidity], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: "24h trade volume over pooled liquidity",
	}
}

// analyzeVerification applies only to EVM chains; Solana programs have
// no equivalent source-verification registry.
func analyzeVerification(f *models.TokenFacts, w map[string]float64, chain models.Chain) models.MetricResult {
	if !chain.IsEVM() {
		return missingMetric(MetricVerification, "not applicable on Solana")
	}
	tag := f.Verification
	if tag.Confidence == models.ConfidenceMissing {
		return missingMetric(MetricVerification, "verification data unavailable")
	}
	score, explanation := 30, "source not verified"
	if tag.Value.SourceVerified {
		score, explanation = 100, "source verified"
	}
	return models.MetricResult{
		Name: MetricVerification, Score: score,
		Weight:      effectiveWeight(w[MetricVerification], tag.Confidence),
		Confidence:  tag.Confidence,
		Explanation: explanation,
	}
}
