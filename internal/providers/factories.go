package providers

import (
	"net/http"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// NewTokenMetadataAdapter builds the adapter covering identity, holder
// distribution, and creator provenance lookups against a token indexer.
func NewTokenMetadataAdapter(id, baseURL, apiKey string, chains []models.Chain) *RESTAdapter {
	hdr := http.Header{}
	if apiKey != "" {
		hdr.Set("Authorization", "Bearer "+apiKey)
	}
	return NewRESTAdapter(RESTConfig{
		ID:      id,
		BaseURL: baseURL,
		Chains:  chains,
		Header:  hdr,
		PathForKind: func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool) {
			switch kind {
			case models.KindIdentity:
				return "v1/tokens/" + tokenAddress, true
			case models.KindHolders:
				return "v1/tokens/" + tokenAddress + "/holders", true
			case models.KindCreatorHistory:
				return "v1/tokens/" + tokenAddress + "/creator", true
			case models.KindVerification:
				return "v1/tokens/" + tokenAddress + "/verification", true
			default:
				return "", false
			}
		},
	})
}

// NewDEXMarketAdapter builds the adapter covering liquidity/volume lookups
// against a DEX aggregator.
func NewDEXMarketAdapter(id, baseURL, apiKey string, chains []models.Chain) *RESTAdapter {
	hdr := http.Header{}
	if apiKey != "" {
		hdr.Set("X-API-Key", apiKey)
	}
	return NewRESTAdapter(RESTConfig{
		ID:      id,
		BaseURL: baseURL,
		Chains:  chains,
		Header:  hdr,
		PathForKind: func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool) {
			if kind != models.KindLiquidity {
				return "", false
			}
			return "v1/pairs/" + tokenAddress, true
		},
	})
}

// NewTradeSimAdapter builds the adapter covering simulated buy/sell
// probes used to detect honeypots and tax asymmetry.
func NewTradeSimAdapter(id, baseURL, apiKey string, chains []models.Chain) *RESTAdapter {
	hdr := http.Header{}
	if apiKey != "" {
		hdr.Set("X-API-Key", apiKey)
	}
	return NewRESTAdapter(RESTConfig{
		ID:      id,
		BaseURL: baseURL,
		Chains:  chains,
		Header:  hdr,
		PathForKind: func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool) {
			if kind != models.KindHoneypot {
				return "", false
			}
			return "v1/simulate/" + tokenAddress, true
		},
	})
}

// NewBlockExplorerAdapter builds the adapter covering social/verification
// lookups against a chain's block explorer.
func NewBlockExplorerAdapter(id, baseURL, apiKey string, chains []models.Chain) *RESTAdapter {
	hdr := http.Header{}
	if apiKey != "" {
		hdr.Set("X-API-Key", apiKey)
	}
	return NewRESTAdapter(RESTConfig{
		ID:      id,
		BaseURL: baseURL,
		Chains:  chains,
		Header:  hdr,
		PathForKind: func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool) {
			switch kind {
			case models.KindVerification:
				return "api/contract/" + tokenAddress + "/verified", true
			case models.KindSocial:
				return "api/contract/" + tokenAddress + "/social", true
			default:
				return "", false
			}
		},
	})
}
