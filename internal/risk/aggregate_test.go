package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/token-risk-guard/internal/blacklist"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

func safeFacts() *models.TokenFacts {
	return &models.TokenFacts{
		Chain:        models.ChainSolana,
		TokenAddress: "So11111111111111111111111111111111111111112",
		Identity: models.Tagged[models.TokenIdentity]{
			Value:      models.TokenIdentity{DeployTime: time.Now().Add(-180 * 24 * time.Hour)},
			Source:     "token-metadata",
			Confidence: models.ConfidenceHigh,
		},
		Authorities: models.Tagged[models.TokenAuthorities]{
			Value: models.TokenAuthorities{
				MintAuthorityRevoked:   true,
				FreezeAuthorityRevoked: true,
				OwnershipRenounced:     true,
			},
			Source: "chain-rpc", Confidence: models.ConfidenceHigh,
		},
		Liquidity: models.Tagged[models.LiquidityInfo]{
			Value: models.LiquidityInfo{
				USDDepth:      decimal.NewFromInt(500000),
				LPLockPercent: 100,
				Volume24hUSD:  decimal.NewFromInt(600000),
			},
			Source: "dex-market", Confidence: models.ConfidenceHigh,
		},
		Distribution: models.Tagged[models.DistributionInfo]{
			Value: models.DistributionInfo{Top10HolderPercent: 10, UniqueHolderCount: 8000},
			Source: "token-metadata", Confidence: models.ConfidenceHigh,
		},
		Trading: models.Tagged[models.TradingInfo]{
			Value: models.TradingInfo{BuyTaxPercent: 1, SellTaxPercent: 1},
			Source: "trade-sim", Confidence: models.ConfidenceHigh,
		},
		Provenance: models.Tagged[models.ProvenanceInfo]{
			Value: models.ProvenanceInfo{DeployTime: time.Now().Add(-180 * 24 * time.Hour)},
			Source: "token-metadata", Confidence: models.ConfidenceHigh,
		},
		Verification: models.Tagged[models.VerificationInfo]{
			Value: models.VerificationInfo{SourceVerified: true, SocialPresence: true},
			Source: "block-explorer", Confidence: models.ConfidenceHigh,
		},
	}
}

func TestAggregate_AllMetricsPresentProducesHighScore(t *testing.T) {
	metrics := Analyze(models.ChainSolana, safeFacts())
	score, scorable := Aggregate(metrics)
	if !scorable {
		t.Fatalf("expected scorable=true with all metrics present")
	}
	if score < 85 {
		t.Fatalf("expected a safe-range score >=85 for a token with every metric clean, got %d", score)
	}
}

func TestAggregate_BelowMinUsableMetricsIsUnscorable(t *testing.T) {
	facts := &models.TokenFacts{} // every field MISSING
	metrics := Analyze(models.ChainSolana, facts)
	score, scorable := Aggregate(metrics)
	if scorable {
		t.Fatalf("expected scorable=false with no data")
	}
	if score != 0 {
		t.Fatalf("expected score=0 for unscorable result, got %d", score)
	}
}

func TestAggregate_PartialIdentityOnlyDataIsUnscorable(t *testing.T) {
	// Only name/symbol/decimals available; every other fetch MISSING,
	// as would happen when the fetch deadline is exceeded.
	facts := &models.TokenFacts{
		Identity: models.Tagged[models.TokenIdentity]{
			Value:      models.TokenIdentity{Name: "Foo", Symbol: "FOO", Decimals: 9},
			Confidence: models.ConfidenceHigh,
		},
	}
	metrics := Analyze(models.ChainSolana, facts)
	_, scorable := Aggregate(metrics)
	if scorable {
		t.Fatalf("expected scorable=false with only identity data present")
	}
}

func TestClassify_HoneypotOverrideForcesLikelyScam(t *testing.T) {
	facts := safeFacts()
	facts.Chain = models.ChainEthereum
	facts.Trading.Value.Honeypot = true
	facts.Trading.Value.SellTaxPercent = 99
	facts.Trading.Value.BuyTaxPercent = 5

	metrics := Analyze(models.ChainEthereum, facts)
	score, scorable := Aggregate(metrics)
	overrides := DetectOverrides(facts, metrics, nil)

	category := Classify(score, scorable, overrides)
	if category != models.CategoryLikelyScam {
		t.Fatalf("expected honeypot override to force LIKELY_SCAM, got %s", category)
	}
	foundHoneypot := false
	for _, o := range overrides {
		if o.Kind == OverrideHoneypotConfirmed {
			foundHoneypot = true
		}
	}
	if !foundHoneypot {
		t.Fatalf("expected HONEYPOT_CONFIRMED override, got %v", overrides)
	}
}

func TestClassify_OverrideNeverLightensCategory(t *testing.T) {
	// A HIGH_RISK forced ceiling must not lift a score that already
	// classifies as LIKELY_SCAM to the less severe HIGH_RISK.
	overrides := []models.Override{{Kind: OverrideCreatorPriorRug, ForcedCategory: models.CategoryHighRisk}}
	category := Classify(10, true, overrides)
	if category != models.CategoryLikelyScam {
		t.Fatalf("expected the HIGH_RISK override to leave LIKELY_SCAM in place, got %s", category)
	}
}

func TestDetectOverrides_ActiveMintWithConcentrationTriggers(t *testing.T) {
	// Top-10 holders at 85%, mint authority still active.
	facts := safeFacts()
	facts.Authorities.Value.MintAuthorityRevoked = false
	facts.Distribution.Value.Top10HolderPercent = 85

	overrides := DetectOverrides(facts, nil, nil)
	found := false
	for _, o := range overrides {
		if o.Kind == OverrideActiveMintPlusConcentration {
			found = true
			if o.ForcedCategory != models.CategoryLikelyScam {
				t.Fatalf("expected ACTIVE_MINT_PLUS_CONCENTRATION to force LIKELY_SCAM, got %s", o.ForcedCategory)
			}
		}
	}
	if !found {
		t.Fatalf("expected ACTIVE_MINT_PLUS_CONCENTRATION override, got %v", overrides)
	}
}

type fakeCreatorBlacklist struct {
	entries map[string]blacklist.Entry
}

func (f fakeCreatorBlacklist) Lookup(addr string) (blacklist.Entry, bool) {
	e, ok := f.entries[addr]
	return e, ok
}

func TestDetectOverrides_BlacklistedCreatorTriggersOverrideEvenWithoutProviderRugCount(t *testing.T) {
	facts := safeFacts()
	facts.Provenance.Value.CreatorAddress = "rugger1"
	facts.Provenance.Value.CreatorPriorRugs = 0 // the provider itself saw nothing

	bl := fakeCreatorBlacklist{entries: map[string]blacklist.Entry{
		"rugger1": {CreatorAddress: "rugger1", Label: "serial rugger", PriorRugCount: 4},
	}}

	overrides := DetectOverrides(facts, nil, bl)
	found := false
	for _, o := range overrides {
		if o.Kind == OverrideCreatorPriorRug {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected CREATOR_PRIOR_RUG override from the blacklist, got %v", overrides)
	}
}

func TestDetectOverrides_TaxAsymmetryRequiresBothConditions(t *testing.T) {
	facts := safeFacts()
	// Gap exceeds 10pp but sell tax is below the 20% floor: must not fire.
	facts.Trading.Value.BuyTaxPercent = 1
	facts.Trading.Value.SellTaxPercent = 15

	overrides := DetectOverrides(facts, nil, nil)
	for _, o := range overrides {
		if o.Kind == OverrideTaxAsymmetry {
			t.Fatalf("tax asymmetry override should not fire below the sell-tax floor, got %v", overrides)
		}
	}

	facts.Trading.Value.SellTaxPercent = 25
	overrides = DetectOverrides(facts, nil, nil)
	found := false
	for _, o := range overrides {
		if o.Kind == OverrideTaxAsymmetry {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected TAX_ASYMMETRY override once sell tax clears the floor, got %v", overrides)
	}
}

func TestAnalyze_ChainSpecificMetricsAreMissingWhenNotApplicable(t *testing.T) {
	facts := safeFacts()
	solMetrics := Analyze(models.ChainSolana, facts)
	evmMetrics := Analyze(models.ChainEthereum, facts)

	for _, m := range solMetrics {
		if m.Name == MetricVerification && m.Confidence != models.ConfidenceMissing {
			t.Fatalf("expected source verification to be MISSING on Solana")
		}
	}
	for _, m := range evmMetrics {
		if m.Name == MetricFreezeAuthority && m.Confidence != models.ConfidenceMissing {
			t.Fatalf("expected freeze authority to be MISSING on EVM")
		}
	}
}

func TestScenario_HealthySolanaTokenScoresSafe(t *testing.T) {
	facts := &models.TokenFacts{
		Chain:        models.ChainSolana,
		TokenAddress: "So11111111111111111111111111111111111111112",
		Identity: models.Tagged[models.TokenIdentity]{
			Value:      models.TokenIdentity{DeployTime: time.Now().Add(-180 * 24 * time.Hour)},
			Confidence: models.ConfidenceHigh,
		},
		Authorities: models.Tagged[models.TokenAuthorities]{
			Value:      models.TokenAuthorities{MintAuthorityRevoked: true, FreezeAuthorityRevoked: true},
			Confidence: models.ConfidenceHigh,
		},
		Liquidity: models.Tagged[models.LiquidityInfo]{
			Value: models.LiquidityInfo{
				USDDepth:      decimal.NewFromInt(150000),
				LPLockPercent: 95,
				Volume24hUSD:  decimal.NewFromInt(180000), // ratio 1.2
			},
			Confidence: models.ConfidenceHigh,
		},
		Distribution: models.Tagged[models.DistributionInfo]{
			Value:      models.DistributionInfo{Top10HolderPercent: 28, UniqueHolderCount: 4000},
			Confidence: models.ConfidenceHigh,
		},
		Trading: models.Tagged[models.TradingInfo]{
			Value:      models.TradingInfo{BuyTaxPercent: 0, SellTaxPercent: 0},
			Confidence: models.ConfidenceHigh,
		},
		Provenance: models.Tagged[models.ProvenanceInfo]{
			Value:      models.ProvenanceInfo{CreatorPriorRugs: 0, DeployTime: time.Now().Add(-180 * 24 * time.Hour)},
			Confidence: models.ConfidenceHigh,
		},
		Verification: models.Tagged[models.VerificationInfo]{
			Value:      models.VerificationInfo{SocialPresence: true},
			Confidence: models.ConfidenceHigh,
		},
	}

	metrics := Analyze(models.ChainSolana, facts)
	score, scorable := Aggregate(metrics)
	overrides := DetectOverrides(facts, metrics, nil)
	category := Classify(score, scorable, overrides)

	if !scorable || score < 85 {
		t.Fatalf("expected finalScore >= 85 for a healthy token, got %d (scorable=%v)", score, scorable)
	}
	if category != models.CategorySafe {
		t.Fatalf("expected SAFE, got %s", category)
	}
	if len(overrides) != 0 {
		t.Fatalf("expected no overrides for a healthy token, got %v", overrides)
	}
}

func TestWeights_SumToOneWithinTolerancePerChain(t *testing.T) {
	sum := func(w map[string]float64) float64 {
		var total float64
		for _, v := range w {
			total += v
		}
		return total
	}
	if s := sum(solanaWeights); s < 0.99 || s > 1.01 {
		t.Fatalf("expected solana weights to sum to 1.00 +/- 0.01, got %f", s)
	}
	// The EVM table deliberately sums to 1.05; the aggregator normalizes
	// by realized weight at runtime rather than requiring the raw table
	// to already sum to 1.0.
	if s := sum(evmWeights); s < 1.0 || s > 1.1 {
		t.Fatalf("expected evm weights to sum near 1.05, got %f", s)
	}
}
