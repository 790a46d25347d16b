package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/token-risk-guard/internal/api"
	"github.com/rawblock/token-risk-guard/internal/blacklist"
	"github.com/rawblock/token-risk-guard/internal/cache"
	"github.com/rawblock/token-risk-guard/internal/config"
	"github.com/rawblock/token-risk-guard/internal/db"
	"github.com/rawblock/token-risk-guard/internal/fetcher"
	"github.com/rawblock/token-risk-guard/internal/pipeline"
	"github.com/rawblock/token-risk-guard/internal/providers"
	"github.com/rawblock/token-risk-guard/internal/ratelimit"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

func main() {
	log.Println("Starting RawBlock Token Risk Guard (Microservice: token-risk-guard)...")
	log.Println("Loading configuration...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v. Set the required environment variables.", err)
	}

	// ─── Persistence ─────────────────────────────────────────────────
	dbConn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.InitSchema(); err != nil {
		log.Printf("Warning: DB schema init failed: %v", err)
	}

	// ─── Cache ───────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.RedisURL)})
	cacheStore := cache.NewStore(rdb, 4096)
	scoreCache := cache.NewScoreCache(cacheStore, cfg.CacheTTL["final_score"])

	// ─── Creator blacklist, refreshed from Postgres ─────────────────
	bl := blacklist.New(dbConn)
	blCtx, cancelBl := context.WithCancel(context.Background())
	defer cancelBl()
	go bl.Run(blCtx, cfg.BlacklistRefresh)

	// ─── Provider adapters, wired per data kind in priority order ───
	chains := []models.Chain{
		models.ChainSolana, models.ChainEthereum, models.ChainBase, models.ChainBSC, models.ChainPolygon,
	}
	evmChains := []models.Chain{models.ChainEthereum, models.ChainBase, models.ChainBSC, models.ChainPolygon}

	tokenMetadata := providers.NewTokenMetadataAdapter("token_metadata", getEnvOrDefault("TOKEN_METADATA_URL", "https://api.token-metadata.internal"), os.Getenv("TOKEN_METADATA_API_KEY"), chains)
	dexMarket := providers.NewDEXMarketAdapter("dex_market", getEnvOrDefault("DEX_MARKET_URL", "https://api.dex-market.internal"), os.Getenv("DEX_MARKET_API_KEY"), chains)
	tradeSim := providers.NewTradeSimAdapter("trade_sim", getEnvOrDefault("TRADE_SIM_URL", "https://api.trade-sim.internal"), os.Getenv("TRADE_SIM_API_KEY"), chains)
	blockExplorer := providers.NewBlockExplorerAdapter("block_explorer", getEnvOrDefault("BLOCK_EXPLORER_URL", "https://api.block-explorer.internal"), os.Getenv("BLOCK_EXPLORER_API_KEY"), chains)
	solanaRPC := providers.NewChainRPCAdapter(providers.ChainRPCConfig{
		ID:       "chain_rpc_solana",
		Endpoint: getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		Chains:   []models.Chain{models.ChainSolana},
	})
	evmRPC := providers.NewChainRPCAdapter(providers.ChainRPCConfig{
		ID:       "chain_rpc_evm",
		Endpoint: getEnvOrDefault("EVM_RPC_URL", "https://eth.llamarpc.com"),
		Chains:   evmChains,
	})

	priority := map[models.DataKind][]providers.Adapter{
		models.KindIdentity:       {solanaRPC, evmRPC, tokenMetadata},
		models.KindAuthorities:    {solanaRPC, evmRPC},
		models.KindVerification:   {blockExplorer, tokenMetadata},
		models.KindHolders:        {tokenMetadata},
		models.KindLiquidity:      {dexMarket},
		models.KindHoneypot:       {tradeSim},
		models.KindCreatorHistory: {tokenMetadata},
		models.KindSocial:         {blockExplorer},
	}
	for kind, ids := range cfg.ProviderPriority {
		k := models.DataKind(kind)
		if list, ok := priority[k]; ok {
			priority[k] = orderByPriority(list, ids)
		}
	}

	// cfg's rate limits are keyed by logical provider category
	// ("chain_rpc"); the reservoir is keyed by adapter ID, so each of the
	// two chain-RPC adapters gets its own bucket with that category's
	// settings.
	ratePerMin := map[string]int{
		"chain_rpc_solana": cfg.RateLimitRatePerMin["chain_rpc"],
		"chain_rpc_evm":    cfg.RateLimitRatePerMin["chain_rpc"],
		"token_metadata":   cfg.RateLimitRatePerMin["token_metadata"],
		"dex_market":       cfg.RateLimitRatePerMin["dex_market"],
		"trade_sim":        cfg.RateLimitRatePerMin["trade_sim"],
		"block_explorer":   cfg.RateLimitRatePerMin["block_explorer"],
	}
	burst := map[string]int{
		"chain_rpc_solana": cfg.RateLimitBurst["chain_rpc"],
		"chain_rpc_evm":    cfg.RateLimitBurst["chain_rpc"],
		"token_metadata":   cfg.RateLimitBurst["token_metadata"],
		"dex_market":       cfg.RateLimitBurst["dex_market"],
		"trade_sim":        cfg.RateLimitBurst["trade_sim"],
		"block_explorer":   cfg.RateLimitBurst["block_explorer"],
	}
	inFlight := map[string]int{
		"chain_rpc_solana": cfg.RateLimitInFlight["chain_rpc"],
		"chain_rpc_evm":    cfg.RateLimitInFlight["chain_rpc"],
		"token_metadata":   cfg.RateLimitInFlight["token_metadata"],
		"dex_market":       cfg.RateLimitInFlight["dex_market"],
		"trade_sim":        cfg.RateLimitInFlight["trade_sim"],
		"block_explorer":   cfg.RateLimitInFlight["block_explorer"],
	}
	reservoir := ratelimit.NewReservoir(ratePerMin, burst, inFlight)

	f := fetcher.New(priority, reservoir, cacheStore, cfg.AdapterCallTimeout, cfg.FetchDeadline, cfg.CacheTTL)

	// ─── WebSocket live-feed hub ─────────────────────────────────────
	wsHub := api.NewHub()
	go wsHub.Run()

	// ─── Job retention ───────────────────────────────────────────────
	// Jobs age out after the retention window; scores are kept forever.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			n, err := dbConn.PurgeExpiredJobs(context.Background(), cfg.JobRetention)
			if err != nil {
				log.Printf("Warning: job retention purge failed: %v", err)
				continue
			}
			log.Printf("Job retention purge removed %d expired jobs", n)
		}
	}()

	// ─── Scan pipeline ───────────────────────────────────────────────
	p := pipeline.New(dbConn, f, scoreCache, bl, wsHub.Broadcast, chains, cfg.WorkersPerChain, cfg.DedupWindow, cfg.ScanDeadline)
	pipelineCtx, cancelPipeline := context.WithCancel(context.Background())
	defer cancelPipeline()
	p.Start(pipelineCtx)
	defer p.Stop()

	// ─── HTTP API ────────────────────────────────────────────────────
	submit := func(req models.ScanRequest) (models.ScanJob, error) {
		return p.Submit(context.Background(), req)
	}
	getStatus := func(requestID string) (models.ScanJob, bool, error) {
		return p.GetStatus(context.Background(), requestID)
	}
	r := api.SetupRouter(dbConn, wsHub, bl, submit, getStatus)

	log.Printf("Token Risk Guard running on :%s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// orderByPriority reorders list so adapters named in ids come first, in
// that order; adapters not named keep their default order after them.
func orderByPriority(list []providers.Adapter, ids []string) []providers.Adapter {
	byID := make(map[string]providers.Adapter, len(list))
	for _, a := range list {
		byID[a.ID()] = a
	}
	var out []providers.Adapter
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok && !seen[id] {
			out = append(out, a)
			seen[id] = true
		}
	}
	for _, a := range list {
		if !seen[a.ID()] {
			out = append(out, a)
		}
	}
	return out
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// redisAddr strips an optional redis:// scheme since redis.Options wants
// a bare host:port for Addr.
func redisAddr(url string) string {
	const scheme = "redis://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		rest := url[len(scheme):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return rest[:i]
			}
		}
		return rest
	}
	return url
}
