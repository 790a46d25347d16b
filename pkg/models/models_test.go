package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRiskScore_WireRoundTrip(t *testing.T) {
	original := RiskScore{
		SchemaVersion: CurrentSchemaVersion,
		RequestID:     "req-1",
		Chain:         ChainSolana,
		TokenAddress:  "So11111111111111111111111111111111111111112",
		FinalScore:    87,
		Scorable:      true,
		Category:      CategorySafe,
		Metrics: []MetricResult{
			{Name: "liquidity_depth", RawValue: 150000, Score: 100, Weight: 0.20, Confidence: ConfidenceHigh, Explanation: "pooled USD liquidity depth"},
			{Name: "source_verification", Confidence: ConfidenceMissing, Explanation: "not applicable on Solana"},
		},
		Overrides: []Override{
			{Kind: "CREATOR_PRIOR_RUG", TriggeringMetrics: []string{"creator_history"}, ForcedCategory: CategoryHighRisk},
		},
		EvaluatedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	var decoded RiskScore
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("wire round-trip changed the value:\n  in:  %+v\n  out: %+v", original, decoded)
	}
}

func TestWorse_PicksMoreSevereCategoryInEitherOrder(t *testing.T) {
	order := []Category{CategorySafe, CategoryCaution, CategoryHighRisk, CategoryLikelyScam, CategoryUnscorable}
	for i, a := range order {
		for j, b := range order {
			want := a
			if j > i {
				want = b
			}
			if got := Worse(a, b); got != want {
				t.Errorf("Worse(%s, %s) = %s, want %s", a, b, got, want)
			}
		}
	}
}

func TestTier_PriorityOrdering(t *testing.T) {
	if !(TierEnterprise.Priority() < TierPremium.Priority() && TierPremium.Priority() < TierFree.Priority()) {
		t.Fatalf("expected ENTERPRISE < PREMIUM < FREE priority, got %d/%d/%d",
			TierEnterprise.Priority(), TierPremium.Priority(), TierFree.Priority())
	}
	if Tier("UNKNOWN").Priority() != TierFree.Priority() {
		t.Fatal("expected unrecognized tiers to fall back to FREE priority")
	}
}
