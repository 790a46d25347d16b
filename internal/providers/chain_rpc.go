package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// ChainRPCConfig configures a JSON-RPC adapter against a chain node
// (Solana's getAccountInfo-style API, or an EVM eth_call endpoint).
type ChainRPCConfig struct {
	ID         string
	Endpoint   string
	Chains     []models.Chain
	HTTPClient *http.Client
}

// ChainRPCAdapter fetches on-chain authority/mint state directly from a
// node over JSON-RPC.
type ChainRPCAdapter struct {
	id       string
	endpoint string
	chains   map[models.Chain]bool
	http     *http.Client
}

// NewChainRPCAdapter returns an adapter for endpoint without contacting
// it, so construction never fails on a bad endpoint; an unreachable node
// shows up as a TRANSIENT error from Fetch.
func NewChainRPCAdapter(cfg ChainRPCConfig) *ChainRPCAdapter {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Second}
	}
	chains := make(map[models.Chain]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains[c] = true
	}
	return &ChainRPCAdapter{id: cfg.ID, endpoint: cfg.Endpoint, chains: chains, http: httpClient}
}

func (a *ChainRPCAdapter) ID() string { return a.id }

func (a *ChainRPCAdapter) Supports(c models.Chain, kind models.DataKind) bool {
	if !a.chains[c] {
		return false
	}
	return kind == models.KindAuthorities || kind == models.KindIdentity
}

func (a *ChainRPCAdapter) Fetch(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind) (*models.ProviderResponse, error) {
	if !a.Supports(c, kind) {
		return nil, &Error{Class: ClassNotSupported, Message: fmt.Sprintf("%s: does not support %s on %s", a.id, kind, c)}
	}

	start := time.Now()
	method := "getAccountInfo"
	if c.IsEVM() {
		method = "eth_call"
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []any{tokenAddress},
	})
	if err != nil {
		return nil, &Error{Class: ClassMalformed, Message: "encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Class: ClassTransient, Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &Error{Class: ClassTransient, Message: "rpc call failed", Cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &Error{Class: ClassRateLimited, Message: a.id + ": rate limited by upstream"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &Error{Class: ClassAuth, Message: a.id + ": rejected credentials"}
	case http.StatusNotFound:
		return nil, &Error{Class: ClassNotFound, Message: a.id + ": account not found"}
	}
	if resp.StatusCode >= 500 {
		return nil, &Error{Class: ClassTransient, Message: fmt.Sprintf("%s: upstream status %d", a.id, resp.StatusCode)}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Class: ClassMalformed, Message: "decode response", Cause: err}
	}

	return &models.ProviderResponse{
		ProviderID: a.id,
		DataKind:   kind,
		Payload:    payload,
		FetchedAt:  time.Now(),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
