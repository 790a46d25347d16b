package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// tierCeilingKey is the gin context key under which AuthMiddleware
// records the highest tier the authenticated credential may assert.
const tierCeilingKey = "tierCeiling"

type credential struct {
	token   string
	ceiling models.Tier
}

// loadCredentials parses API_AUTH_TOKENS ("token=TIER,token=TIER"),
// binding each bearer token to the highest tier it may assert; a token
// with no "=TIER" suffix is bound to FREE. The legacy single-token
// API_AUTH_TOKEN is honored as an ENTERPRISE-ceiling credential. An
// empty result disables auth entirely (dev mode).
func loadCredentials() []credential {
	var creds []credential
	for _, pair := range strings.Split(os.Getenv("API_AUTH_TOKENS"), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, tier, bound := strings.Cut(pair, "=")
		ceiling := models.TierFree
		if bound {
			switch t := models.Tier(strings.ToUpper(strings.TrimSpace(tier))); t {
			case models.TierFree, models.TierPremium, models.TierEnterprise:
				ceiling = t
			default:
				log.Printf("[Auth] unknown tier %q in API_AUTH_TOKENS, binding credential to FREE", tier)
			}
		}
		creds = append(creds, credential{token: token, ceiling: ceiling})
	}
	if single := os.Getenv("API_AUTH_TOKEN"); single != "" {
		creds = append(creds, credential{token: single, ceiling: models.TierEnterprise})
	}
	return creds
}

// AuthMiddleware gates the scan endpoints behind bearer credentials.
// Each credential carries a tier ceiling; handleSubmitScan clamps the
// tier the caller asserts to that ceiling, so a FREE-bound token cannot
// buy itself ENTERPRISE queue priority by lying in the request body.
// With no credentials configured, every request passes at an ENTERPRISE
// ceiling — the intended dev-mode behavior, but a misconfiguration in
// production.
func AuthMiddleware() gin.HandlerFunc {
	creds := loadCredentials()

	if len(creds) == 0 && os.Getenv("GIN_MODE") == "release" {
		log.Println("[SECURITY WARNING] no API auth tokens configured in release mode; " +
			"scan submission is publicly accessible. Set API_AUTH_TOKENS (or API_AUTH_TOKEN) to enforce authentication.")
	}

	return func(c *gin.Context) {
		if len(creds) == 0 {
			c.Set(tierCeilingKey, models.TierEnterprise)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <token>",
			})
			c.Abort()
			return
		}

		scheme, presented, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time compare so response timing leaks nothing about
		// how much of a guessed token matched.
		for _, cred := range creds {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(cred.token)) == 1 {
				c.Set(tierCeilingKey, cred.ceiling)
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
		c.Abort()
	}
}

// tierCeiling returns the ceiling AuthMiddleware recorded for this
// request, defaulting to ENTERPRISE when auth is disabled.
func tierCeiling(c *gin.Context) models.Tier {
	if v, ok := c.Get(tierCeilingKey); ok {
		if t, ok := v.(models.Tier); ok {
			return t
		}
	}
	return models.TierEnterprise
}

// clampTier lowers requested to ceiling when the credential isn't
// entitled to the requested band. Priority numbers grow as privilege
// shrinks, so the clamp keeps the larger number.
func clampTier(requested, ceiling models.Tier) models.Tier {
	if requested.Priority() < ceiling.Priority() {
		return ceiling
	}
	return requested
}
