package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/token-risk-guard/internal/blacklist"
	"github.com/rawblock/token-risk-guard/internal/chain"
	"github.com/rawblock/token-risk-guard/internal/db"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

// APIHandler wires the HTTP surface to the scan pipeline, persistence, and
// live-feed hub. It takes Submit/GetStatus as plain funcs rather than the
// pipeline type itself so this package never needs to import
// internal/pipeline.
type APIHandler struct {
	dbStore   *db.PostgresStore
	wsHub     *Hub
	blacklist *blacklist.Blacklist
	submit    func(models.ScanRequest) (models.ScanJob, error)
	getStatus func(string) (models.ScanJob, bool, error)
}

func SetupRouter(dbStore *db.PostgresStore, wsHub *Hub, bl *blacklist.Blacklist, submit func(models.ScanRequest) (models.ScanJob, error), getStatus func(string) (models.ScanJob, bool, error)) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://riskguard.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore:   dbStore,
		wsHub:     wsHub,
		blacklist: bl,
		submit:    submit,
		getStatus: getStatus,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	// ── Protected endpoints (require bearer token if auth is configured) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// 60 tokens/min per IP; submissions are charged harder than status
	// polls since each one fans out to the full provider set.
	limiter := NewRateLimiter(60, 15)
	{
		auth.POST("/scan", limiter.Middleware(submitCost), handler.handleSubmitScan)
		auth.GET("/scan/:requestId", limiter.Middleware(statusCost), handler.handleGetScan)
	}

	return r
}

// handleSubmitScan accepts a token scan request and enqueues it.
// POST /api/v1/scan { "chain": "SOLANA", "tokenAddress": "...", "userId": "...", "tier": "FREE" }
func (h *APIHandler) handleSubmitScan(c *gin.Context) {
	var req struct {
		Chain        models.Chain `json:"chain"`
		TokenAddress string       `json:"tokenAddress"`
		UserID       string       `json:"userId"`
		Tier         models.Tier  `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {chain, tokenAddress, userId, tier}"})
		return
	}

	if !req.Chain.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported chain", "chain": req.Chain})
		return
	}

	normalized, err := chain.NormalizeAddress(req.Chain, req.TokenAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Tier {
	case models.TierFree, models.TierPremium, models.TierEnterprise:
	default:
		req.Tier = models.TierFree
	}
	// The asserted tier only buys queue priority up to what the caller's
	// credential is bound to.
	req.Tier = clampTier(req.Tier, tierCeiling(c))

	// The creator blacklist is keyed by creator address, which isn't known
	// until the scan fetches the token's provenance data — so it's checked
	// by the scoring engine's CREATOR_PRIOR_RUG override, not here.

	job, err := h.submit(models.ScanRequest{
		Chain:        req.Chain,
		TokenAddress: normalized,
		UserID:       req.UserID,
		Tier:         req.Tier,
		SubmittedAt:  time.Now(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue scan", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"requestId": job.RequestID,
		"state":     job.State,
		"priority":  job.Priority,
	})
}

// handleGetScan returns the current job state, and the completed RiskScore
// once available.
// GET /api/v1/scan/:requestId
func (h *APIHandler) handleGetScan(c *gin.Context) {
	requestID := c.Param("requestId")

	job, found, err := h.getStatus(requestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job status", "details": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown requestId"})
		return
	}

	resp := gin.H{
		"requestId": job.RequestID,
		"chain":     job.Chain,
		"state":     job.State,
		"attempts":  job.Attempts,
	}
	if job.LastError != "" {
		resp["lastError"] = job.LastError
	}

	if job.State == models.StateCompleted {
		score, ok, err := h.dbStore.GetRiskScore(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch risk score", "details": err.Error()})
			return
		}
		if ok {
			resp["result"] = score
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleHealth returns engine status and capabilities for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	dbConnected := h.dbStore != nil

	c.JSON(http.StatusOK, gin.H{
		"status":              "operational",
		"service":             "RawBlock Token Risk Guard",
		"schemaVersion":       models.CurrentSchemaVersion,
		"dbConnected":         dbConnected,
		"blacklistedCreators": h.blacklist.Size(),
		"capabilities": gin.H{
			"chains": []models.Chain{
				models.ChainSolana, models.ChainEthereum, models.ChainBase, models.ChainBSC, models.ChainPolygon,
			},
			"websocketStream": true,
		},
	})
}
