// Package config loads runtime configuration from the environment,
// following the same requireEnv/getEnvOrDefault pattern the rest of this
// project's ancestry uses for its wiring.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is every tunable the scan pipeline, fetcher, cache, and API need.
type Config struct {
	Port string

	AuthToken      string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	WorkersPerChain    int
	ScanDeadline       time.Duration
	FetchDeadline      time.Duration
	AdapterCallTimeout time.Duration
	DedupWindow        time.Duration

	CacheTTL map[string]time.Duration

	RateLimitRatePerMin map[string]int
	RateLimitBurst      map[string]int
	RateLimitInFlight   map[string]int

	ProviderPriority map[string][]string // dataKind -> ordered provider IDs

	JobRetention time.Duration

	BlacklistSource  string
	BlacklistRefresh time.Duration
}

// Load reads configuration from the environment, applying sensible
// defaults where a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		AuthToken:          os.Getenv("API_AUTH_TOKEN"),
		AllowedOrigins:     getEnvOrDefault("ALLOWED_ORIGINS", "*"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		WorkersPerChain:    getEnvInt("WORKERS_PER_CHAIN", 4),
		ScanDeadline:       getEnvMillis("SCAN_DEADLINE_MS", 3000),
		FetchDeadline:      getEnvMillis("FETCH_DEADLINE_MS", 1500),
		AdapterCallTimeout: getEnvMillis("ADAPTER_CALL_TIMEOUT_MS", 2000),
		DedupWindow:        getEnvMillis("DEDUP_WINDOW_MS", 30000),
		JobRetention:       time.Duration(getEnvInt("JOB_RETENTION_DAYS", 30)) * 24 * time.Hour,
		BlacklistSource:    getEnvOrDefault("BLACKLIST_SOURCE", "database"),
		BlacklistRefresh:   getEnvMillis("BLACKLIST_REFRESH_MS", 300000),
	}

	// Identity is immutable after deploy (30 days); authorities and
	// verification are revocable but rarely change; holders and liquidity
	// track live market state; honeypot sits in between, and the
	// whole-scan final score is as short-lived as liquidity.
	cfg.CacheTTL = map[string]time.Duration{
		"identity":        getEnvSeconds("CACHE_IDENTITY_TTL_S", 30*24*3600),
		"authorities":     getEnvSeconds("CACHE_AUTHORITIES_TTL_S", 3600),
		"verification":    getEnvSeconds("CACHE_VERIFICATION_TTL_S", 86400),
		"holders":         getEnvSeconds("CACHE_HOLDERS_TTL_S", 600),
		"liquidity":       getEnvSeconds("CACHE_LIQUIDITY_TTL_S", 300),
		"honeypot":        getEnvSeconds("CACHE_HONEYPOT_TTL_S", 1800),
		"creator_history": getEnvSeconds("CACHE_CREATOR_HISTORY_TTL_S", 3600),
		"social":          getEnvSeconds("CACHE_SOCIAL_TTL_S", 3600),
		"final_score":     getEnvSeconds("CACHE_FINAL_SCORE_TTL_S", 300),
	}

	cfg.RateLimitRatePerMin = map[string]int{}
	cfg.RateLimitBurst = map[string]int{}
	cfg.RateLimitInFlight = map[string]int{}
	for _, p := range []string{"chain_rpc", "token_metadata", "dex_market", "trade_sim", "block_explorer"} {
		cfg.RateLimitRatePerMin[p] = getEnvInt("RATELIMIT_"+envKey(p)+"_RATE", 60)
		cfg.RateLimitBurst[p] = getEnvInt("RATELIMIT_"+envKey(p)+"_BURST", 10)
		cfg.RateLimitInFlight[p] = getEnvInt("RATELIMIT_"+envKey(p)+"_MAX_INFLIGHT", 4)
	}

	// Provider priority per data kind is configuration, not code: e.g.
	// PROVIDERS_LIQUIDITY_PRIORITY=dex_market,dex_backup reorders the
	// adapter list for that kind without touching the fetcher.
	cfg.ProviderPriority = map[string][]string{}
	for _, k := range []string{"identity", "authorities", "verification", "holders", "liquidity", "honeypot", "creator_history", "social"} {
		v := os.Getenv("PROVIDERS_" + envKey(k) + "_PRIORITY")
		if v == "" {
			continue
		}
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			cfg.ProviderPriority[k] = ids
		}
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func envKey(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvMillis(key string, defMs int) time.Duration {
	return time.Duration(getEnvInt(key, defMs)) * time.Millisecond
}

func getEnvSeconds(key string, defSec int) time.Duration {
	return time.Duration(getEnvInt(key, defSec)) * time.Second
}
