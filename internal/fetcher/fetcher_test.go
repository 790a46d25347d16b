package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rawblock/token-risk-guard/internal/cache"
	"github.com/rawblock/token-risk-guard/internal/providers"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

type fakeAdapter struct {
	id       string
	kinds    map[models.DataKind]bool
	payload  map[string]any
	err      error
	fetchLog *[]string
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Supports(c models.Chain, kind models.DataKind) bool {
	return a.kinds[kind]
}

func (a *fakeAdapter) Fetch(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind) (*models.ProviderResponse, error) {
	if a.fetchLog != nil {
		*a.fetchLog = append(*a.fetchLog, a.id)
	}
	if a.err != nil {
		return nil, a.err
	}
	return &models.ProviderResponse{ProviderID: a.id, DataKind: kind, Payload: a.payload, FetchedAt: time.Now()}, nil
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(srv.Close)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return cache.NewStore(rdb, 64)
}

func TestFetcher_FailsOverToNextPriorityAdapter(t *testing.T) {
	var log []string
	failing := &fakeAdapter{id: "primary", kinds: map[models.DataKind]bool{models.KindIdentity: true},
		err: &providers.Error{Class: providers.ClassTransient, Message: "boom"}, fetchLog: &log}
	backup := &fakeAdapter{id: "backup", kinds: map[models.DataKind]bool{models.KindIdentity: true},
		payload: map[string]any{"name": "Example", "symbol": "EX", "decimals": float64(9)}, fetchLog: &log}

	f := New(map[models.DataKind][]providers.Adapter{
		models.KindIdentity: {failing, backup},
	}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Identity.Confidence == models.ConfidenceMissing {
		t.Fatal("expected identity to be populated by the backup adapter")
	}
	if facts.Identity.Source != "backup" {
		t.Fatalf("expected source=backup, got %s", facts.Identity.Source)
	}
	if len(log) < 2 || log[0] != "primary" || log[1] != "backup" {
		t.Fatalf("expected primary to be tried before backup, got %v", log)
	}
}

func TestFetcher_MissingKindTaggedMissing(t *testing.T) {
	f := New(map[models.DataKind][]providers.Adapter{}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Liquidity.Confidence != models.ConfidenceMissing {
		t.Fatalf("expected liquidity to be MISSING with no configured adapters, got %s", facts.Liquidity.Confidence)
	}
}

func TestFetcher_CrossValidationAgreesWithinTolerance(t *testing.T) {
	a := &fakeAdapter{id: "dexA", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(100000), "volume24hUsd": float64(5000)}}
	b := &fakeAdapter{id: "dexB", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(105000), "volume24hUsd": float64(5200)}}

	f := New(map[models.DataKind][]providers.Adapter{
		models.KindLiquidity: {a, b},
	}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Liquidity.Confidence != models.ConfidenceHigh {
		t.Fatalf("expected HIGH confidence for agreeing sources, got %s", facts.Liquidity.Confidence)
	}
	depth, _ := facts.Liquidity.Value.USDDepth.Float64()
	if depth != 102500 {
		t.Fatalf("expected the mean of the two agreeing readings, got %v", depth)
	}
}

func TestFetcher_CrossValidationPartiallyAgreesUsesConservativeValue(t *testing.T) {
	a := &fakeAdapter{id: "dexA", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(100000)}}
	b := &fakeAdapter{id: "dexB", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(125000)}}

	f := New(map[models.DataKind][]providers.Adapter{
		models.KindLiquidity: {a, b},
	}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Liquidity.Confidence != models.ConfidenceMedium {
		t.Fatalf("expected MEDIUM confidence for partially agreeing sources, got %s", facts.Liquidity.Confidence)
	}
	depth, _ := facts.Liquidity.Value.USDDepth.Float64()
	if depth != 100000 {
		t.Fatalf("expected the lower (conservative) reading to be kept, got %v", depth)
	}
}

func TestFetcher_NotFoundStopsFailoverAndCachesNegative(t *testing.T) {
	var log []string
	notFound := &fakeAdapter{id: "primary", kinds: map[models.DataKind]bool{models.KindIdentity: true},
		err: &providers.Error{Class: providers.ClassNotFound, Message: "no such mint"}, fetchLog: &log}
	backup := &fakeAdapter{id: "backup", kinds: map[models.DataKind]bool{models.KindIdentity: true},
		payload: map[string]any{"name": "Example"}, fetchLog: &log}

	f := New(map[models.DataKind][]providers.Adapter{
		models.KindIdentity: {notFound, backup},
	}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Identity.Confidence != models.ConfidenceMissing {
		t.Fatalf("expected identity to be MISSING after a confirmed NOT_FOUND, got %s", facts.Identity.Confidence)
	}
	if len(log) != 1 {
		t.Fatalf("expected NOT_FOUND to stop failover before trying backup, got calls %v", log)
	}

	// A second fetch should hit the negative cache entry and not call
	// either adapter again.
	log = nil
	facts2 := f.Fetch(context.Background(), models.ChainSolana, "tok")
	if len(log) != 0 {
		t.Fatalf("expected the negative cache entry to suppress further adapter calls, got %v", log)
	}
	if facts2.Identity.Confidence != models.ConfidenceMissing {
		t.Fatalf("expected cached NOT_FOUND to still read as MISSING, got %s", facts2.Identity.Confidence)
	}
}

func TestFetcher_CrossValidationDisagreesBeyondTolerance(t *testing.T) {
	a := &fakeAdapter{id: "dexA", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(100000)}}
	b := &fakeAdapter{id: "dexB", kinds: map[models.DataKind]bool{models.KindLiquidity: true},
		payload: map[string]any{"usdDepth": float64(10000)}}

	f := New(map[models.DataKind][]providers.Adapter{
		models.KindLiquidity: {a, b},
	}, nil, newTestCache(t), time.Second, 0, nil)

	facts := f.Fetch(context.Background(), models.ChainSolana, "tok")

	if facts.Liquidity.Confidence != models.ConfidenceLow {
		t.Fatalf("expected LOW confidence for disagreeing sources, got %s", facts.Liquidity.Confidence)
	}
	depth, _ := facts.Liquidity.Value.USDDepth.Float64()
	if depth != 10000 {
		t.Fatalf("expected the lower reading to be kept, got %v", depth)
	}
}
