package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewStore(rdb, 16), func() { srv.Close() }
}

func TestStore_SetThenGetHitsLocalLRU(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Clear redis directly; the value must still come back from the local tier.
	store.redisClient.FlushAll(ctx)

	v, ok := store.Get(ctx, "k")
	if !ok || string(v) != "v" {
		t.Fatalf("expected local-tier hit of %q, got %q ok=%v", "v", v, ok)
	}
}

func TestStore_GetMissReturnsFalse(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	if _, ok := store.Get(context.Background(), "missing"); ok {
		t.Fatal("expected miss for unset key")
	}
}

func TestStore_GetOrFetchCallsFetchOnceAndCaches(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (any, error) {
		calls++
		return map[string]any{"n": float64(calls)}, nil
	}

	v1, err := store.GetOrFetch(ctx, "key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := store.GetOrFetch(ctx, "key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected fetch to run exactly once across both calls, ran %d times", calls)
	}
	m1, m2 := v1.(map[string]any), v2.(map[string]any)
	if m1["n"] != m2["n"] {
		t.Fatalf("expected second call to reuse the cached result, got %v vs %v", m1, m2)
	}
}

func TestStore_LocalLRUEvictsOldestBeyondCapacity(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	for i := 0; i < 20; i++ {
		store.putLocal(string(rune('a'+i)), []byte{byte(i)}, time.Minute)
	}

	if _, ok := store.getLocal("a"); ok {
		t.Fatal("expected the oldest entry to have been evicted once capacity was exceeded")
	}
	if _, ok := store.getLocal(string(rune('a' + 19))); !ok {
		t.Fatal("expected the most recently inserted entry to still be present")
	}
}
