package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Per-IP token bucket guarding the HTTP surface, charged by what a
// request triggers downstream rather than flat per-request: one scan
// submission fans out to the full provider-adapter set (up to eight
// concurrent upstream fetches), while a status poll is a single indexed
// job-store read. Buckets idle longer than clientIdleExpiry are dropped
// to keep memory bounded under churning client IPs.

const clientIdleExpiry = 10 * time.Minute

// Route costs, in bucket tokens.
const (
	submitCost = 5 // POST /scan: fans out to every configured provider
	statusCost = 1 // GET /scan/:requestId: one indexed read
)

type clientBucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// RateLimiter tracks one token bucket per client IP.
type RateLimiter struct {
	ratePerSec float64
	burst      float64
	limitDesc  string

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

// NewRateLimiter refills each IP's bucket at ratePerMin tokens per
// minute up to a capacity of burst tokens. How many submissions or
// polls that buys depends on the per-route cost charged by Middleware.
// The cleanup goroutine runs for the limiter's lifetime.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	rl := &RateLimiter{
		ratePerSec: float64(ratePerMin) / 60.0,
		burst:      float64(burst),
		limitDesc:  fmt.Sprintf("%d tokens/minute per IP (submission costs %d, status poll %d)", ratePerMin, submitCost, statusCost),
		buckets:    make(map[string]*clientBucket),
	}
	go rl.reapIdleBuckets()
	return rl
}

// allowN charges cost tokens from ip's bucket, reporting whether the
// request may proceed, the tokens left, and how long until enough
// tokens refill when it may not.
func (rl *RateLimiter) allowN(ip string, cost float64) (bool, float64, time.Duration) {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{tokens: rl.burst}
		rl.buckets[ip] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.ratePerSec
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastSeen = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens, 0
	}
	retryAfter := time.Duration((cost-b.tokens)/rl.ratePerSec*1000) * time.Millisecond
	return false, b.tokens, retryAfter
}

// Middleware charges cost tokens per request, rejecting over-limit
// requests with 429 and a Retry-After hint. Remaining budget is exposed
// on every response so well-behaved clients can pace themselves.
func (rl *RateLimiter) Middleware(cost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, retryAfter := rl.allowN(c.ClientIP(), float64(cost))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter.String(),
				"limit":      rl.limitDesc,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) reapIdleBuckets() {
	ticker := time.NewTicker(clientIdleExpiry)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-clientIdleExpiry)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
