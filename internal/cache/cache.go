// Package cache implements the two-tier fetch cache: an in-process LRU
// in front of a shared Redis store, with single-flight coalescing so
// concurrent scans of the same token share one upstream fetch.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Store is the two-tier cache. The redis.Cmdable field mirrors the
// watcher.cache field shape used elsewhere in this ecosystem for
// provider-polling caches: a thin typed handle with Set/Get and TTLs.
type Store struct {
	redisClient redis.Cmdable
	group       singleflight.Group

	localMu   sync.Mutex
	local     map[string]*list.Element
	localList *list.List
	localCap  int
}

type localEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewStore builds a Store backed by rdb, with an in-process LRU of
// localCap entries in front of it.
func NewStore(rdb redis.Cmdable, localCap int) *Store {
	if localCap <= 0 {
		localCap = 1024
	}
	return &Store{
		redisClient: rdb,
		local:       make(map[string]*list.Element),
		localList:   list.New(),
		localCap:    localCap,
	}
}

// Get returns the cached value for key, and whether it was found and
// still fresh.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := s.getLocal(key); ok {
		return v, true
	}
	v, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// redis unavailable: degrade to cache-miss rather than fail the scan.
		}
		return nil, false
	}
	// The local copy must not outlive the redis entry it came from.
	localTTL := 30 * time.Second
	if remaining, err := s.redisClient.PTTL(ctx, key).Result(); err == nil && remaining > 0 && remaining < localTTL {
		localTTL = remaining
	}
	s.putLocal(key, v, localTTL)
	return v, true
}

// Set writes value for key with the given ttl into both tiers.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.putLocal(key, value, ttl)
	return s.redisClient.Set(ctx, key, value, ttl).Err()
}

// GetOrFetch returns the cached value for key if present, otherwise calls
// fetch exactly once across all concurrent callers sharing key (via
// single-flight) and populates the cache with its result.
func (s *Store) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	if raw, ok := s.Get(ctx, key); ok {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		result, ferr := fetch(ctx)
		if ferr != nil {
			return nil, ferr
		}
		raw, merr := json.Marshal(result)
		if merr == nil {
			_ = s.Set(ctx, key, raw, ttl)
		}
		return result, nil
	})
	return v, err
}

// Coalesce runs fn at most once per key across all concurrent callers —
// every caller sharing key blocks on the one in-flight call's result
// instead of duplicating the upstream work, the same single-flight
// guarantee GetOrFetch provides for its own callers.
func (s *Store) Coalesce(key string, fn func() (any, error)) (any, error) {
	v, err, _ := s.group.Do(key, fn)
	return v, err
}

func (s *Store) getLocal(key string) ([]byte, bool) {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	el, ok := s.local[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*localEntry)
	if time.Now().After(entry.expiresAt) {
		s.localList.Remove(el)
		delete(s.local, key)
		return nil, false
	}
	s.localList.MoveToFront(el)
	return entry.value, true
}

func (s *Store) putLocal(key string, value []byte, ttl time.Duration) {
	s.localMu.Lock()
	defer s.localMu.Unlock()

	if el, ok := s.local[key]; ok {
		el.Value.(*localEntry).value = value
		el.Value.(*localEntry).expiresAt = time.Now().Add(ttl)
		s.localList.MoveToFront(el)
		return
	}

	entry := &localEntry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	el := s.localList.PushFront(entry)
	s.local[key] = el

	for s.localList.Len() > s.localCap {
		oldest := s.localList.Back()
		if oldest == nil {
			break
		}
		s.localList.Remove(oldest)
		delete(s.local, oldest.Value.(*localEntry).key)
	}
}
