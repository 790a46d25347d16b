// Package fetcher implements the multi-provider fetch stage (C3): for
// each data kind a scan needs, it walks a priority-ordered adapter list,
// failing over past rate-limited, transient, or breaker-open providers,
// and cross-validates results when more than one adapter answers.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/token-risk-guard/internal/cache"
	"github.com/rawblock/token-risk-guard/internal/providers"
	"github.com/rawblock/token-risk-guard/internal/ratelimit"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

const maxInFlight = 8

// crossValidatedKinds are the data kinds that benefit from a second,
// corroborating provider call. Every other kind stops dispatching as
// soon as one adapter answers, so a kind configured with 2+ adapters
// (e.g. identity, authorities) doesn't spend rate-limit budget on a
// confirmation call it doesn't need.
var crossValidatedKinds = map[models.DataKind]bool{
	models.KindLiquidity: true,
	models.KindHolders:   true,
}

// Fetcher resolves TokenFacts for one token by dispatching to provider
// adapters in priority order.
type Fetcher struct {
	adapters      map[models.DataKind][]providers.Adapter // priority order, index 0 first
	breakers      map[string]*CircuitBreaker
	reservoir     *ratelimit.Reservoir
	cache         *cache.Store
	callTimeout   time.Duration
	fetchDeadline time.Duration            // overall budget for one Fetch call; 0 disables
	ttl           map[string]time.Duration // keyed by DataKind string
}

// New builds a Fetcher. priority maps each data kind to its adapters in
// the order they should be tried; adapters fail over in that order rather
// than round-robin. fetchDeadline bounds the whole Fetch call (shorter
// than the caller's own scan deadline) independently of callTimeout,
// which bounds a single adapter call; 0 leaves Fetch governed only by the
// caller's context. ttl supplies the per-data-kind cache TTL policy
// (internal/config's Config.CacheTTL); a nil or zero-value entry falls
// back to defaultTTLForKind.
func New(priority map[models.DataKind][]providers.Adapter, reservoir *ratelimit.Reservoir, store *cache.Store, callTimeout, fetchDeadline time.Duration, ttl map[string]time.Duration) *Fetcher {
	breakers := make(map[string]*CircuitBreaker)
	for _, list := range priority {
		for _, a := range list {
			if _, ok := breakers[a.ID()]; !ok {
				breakers[a.ID()] = NewCircuitBreaker()
			}
		}
	}
	return &Fetcher{adapters: priority, breakers: breakers, reservoir: reservoir, cache: store, callTimeout: callTimeout, fetchDeadline: fetchDeadline, ttl: ttl}
}

// Fetch populates a TokenFacts for tokenAddress on chain within the
// caller's context deadline or fetchDeadline, whichever is tighter,
// dispatching at most maxInFlight data-kind fetches concurrently.
func (f *Fetcher) Fetch(ctx context.Context, c models.Chain, tokenAddress string) *models.TokenFacts {
	if f.fetchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.fetchDeadline)
		defer cancel()
	}

	facts := &models.TokenFacts{Chain: c, TokenAddress: tokenAddress}

	kinds := []models.DataKind{
		models.KindIdentity, models.KindAuthorities, models.KindVerification,
		models.KindHolders, models.KindLiquidity, models.KindHoneypot,
		models.KindCreatorHistory, models.KindSocial,
	}

	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, kind := range kinds {
		kind := kind
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			responses := f.fetchKind(ctx, c, tokenAddress, kind)
			mu.Lock()
			applyResponses(facts, kind, responses)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		facts.FetchDeadlineExceeded = true
	}
	return facts
}

// fetchKind returns the cached response(s) for kind if present; on a
// miss it coalesces concurrent callers sharing (chain, tokenAddress,
// kind) through the cache's single-flight group, so at most one upstream
// dispatch runs per key while every other caller waits on its result.
func (f *Fetcher) fetchKind(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind) []*models.ProviderResponse {
	cacheKey := fmt.Sprintf("%s:%s:%s", c, tokenAddress, kind)
	if raw, ok := f.cache.Get(ctx, cacheKey); ok {
		if string(raw) == "null" {
			// Negative NOT_FOUND cache entry: report no data rather than a
			// fabricated zero-value response.
			return nil
		}
		var resp models.ProviderResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			resp.FromCache = true
			return []*models.ProviderResponse{&resp}
		}
	}

	v, _ := f.cache.Coalesce(cacheKey, func() (any, error) {
		return f.dispatch(ctx, c, tokenAddress, kind, cacheKey), nil
	})
	results, _ := v.([]*models.ProviderResponse)
	return results
}

// dispatch walks the priority-ordered adapter list for kind, failing
// over on rate-limit/transient/breaker-open errors, and returns every
// successful response collected (more than one enables cross-validation).
// Only ever called through fetchKind's single-flight Coalesce.
func (f *Fetcher) dispatch(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind, cacheKey string) []*models.ProviderResponse {
	list := f.adapters[kind]
	var results []*models.ProviderResponse
	var errs []error

	for _, adapter := range list {
		if !adapter.Supports(c, kind) {
			continue
		}

		cb := f.breakers[adapter.ID()]
		if !cb.Allow() {
			errs = append(errs, fmt.Errorf("%s: circuit open", adapter.ID()))
			continue
		}

		if f.reservoir != nil && !f.reservoir.Acquire(ctx, adapter.ID(), f.callTimeout) {
			errs = append(errs, fmt.Errorf("%s: rate limit reservoir exhausted", adapter.ID()))
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		resp, err := adapter.Fetch(callCtx, c, tokenAddress, kind)
		cancel()
		if f.reservoir != nil {
			f.reservoir.Release(adapter.ID())
		}

		if err == nil {
			cb.RecordSuccess()
			results = append(results, resp)
			if raw, merr := json.Marshal(resp); merr == nil {
				_ = f.cache.Set(ctx, cacheKey, raw, f.ttlForKind(kind))
			}
			// Cross-validated kinds keep going until a second corroborating
			// reading comes in; every other kind stops at the first success.
			if !crossValidatedKinds[kind] || len(results) >= 2 {
				break
			}
			continue
		}

		cb.RecordFailure()
		errs = append(errs, fmt.Errorf("%s: %w", adapter.ID(), err))

		class := providers.ClassOf(err)
		if class == providers.ClassNotSupported {
			continue
		}
		if class == providers.ClassNotFound {
			// The source definitively says the token doesn't exist: don't
			// try further providers, and cache the negative result briefly
			// so repeat lookups don't re-dial.
			log.Printf("[Fetcher] %s: %s confirmed NOT_FOUND for this token", adapter.ID(), kind)
			_ = f.cache.Set(ctx, cacheKey, []byte("null"), notFoundTTL)
			break
		}
		if class == providers.ClassAuth {
			log.Printf("[Fetcher][ALERT] %s: authentication failure fetching %s, check credentials; trying next provider", adapter.ID(), kind)
			continue
		}
		// RATE_LIMITED, TRANSIENT, and MALFORMED all record and move on to
		// the next adapter — only NOT_FOUND stops the loop outright.
		log.Printf("[Fetcher] %s failed for %s (%s), trying next provider", adapter.ID(), kind, class)
		continue
	}

	if len(results) == 0 && len(errs) > 0 {
		log.Printf("[Fetcher] all providers failed for %s: %v", kind, errors.Join(errs...))
	}
	return results
}

// notFoundTTL is the negative-cache window for a confirmed NOT_FOUND result.
const notFoundTTL = time.Minute

// defaultTTLForKind is used when Config.CacheTTL has no entry for kind.
func defaultTTLForKind(kind models.DataKind) time.Duration {
	switch kind {
	case models.KindIdentity:
		return 30 * 24 * time.Hour
	case models.KindAuthorities:
		return time.Hour
	case models.KindVerification:
		return 24 * time.Hour
	case models.KindHolders:
		return 10 * time.Minute
	case models.KindLiquidity:
		return 5 * time.Minute
	case models.KindHoneypot:
		return 30 * time.Minute
	case models.KindFinalScore:
		return 5 * time.Minute
	default:
		return time.Hour
	}
}

func (f *Fetcher) ttlForKind(kind models.DataKind) time.Duration {
	if f.ttl != nil {
		if d, ok := f.ttl[string(kind)]; ok && d > 0 {
			return d
		}
	}
	return defaultTTLForKind(kind)
}
