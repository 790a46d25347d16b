package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// ScoreCache caches whole-scan RiskScores keyed by (chain, normalized
// address), so a resubmission shortly after a completed scan is answered
// from cache instead of re-dispatching the full fetch pipeline. The TTL
// is short enough to reflect market shifts, long enough to absorb retry
// traffic past the submission dedup window.
type ScoreCache struct {
	store *Store
	ttl   time.Duration
}

// NewScoreCache wraps store with a RiskScore-typed view under the given TTL.
func NewScoreCache(store *Store, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ScoreCache{store: store, ttl: ttl}
}

func scoreKey(c models.Chain, tokenAddress string) string {
	return fmt.Sprintf("%s:%s:%s", c, tokenAddress, models.KindFinalScore)
}

// Get returns the cached RiskScore for (chain, tokenAddress), if fresh.
func (sc *ScoreCache) Get(ctx context.Context, c models.Chain, tokenAddress string) (models.RiskScore, bool) {
	raw, ok := sc.store.Get(ctx, scoreKey(c, tokenAddress))
	if !ok {
		return models.RiskScore{}, false
	}
	var score models.RiskScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return models.RiskScore{}, false
	}
	return score, true
}

// Put stores a completed RiskScore for its (chain, tokenAddress).
func (sc *ScoreCache) Put(ctx context.Context, score models.RiskScore) {
	raw, err := json.Marshal(score)
	if err != nil {
		return
	}
	_ = sc.store.Set(ctx, scoreKey(score.Chain, score.TokenAddress), raw, sc.ttl)
}
