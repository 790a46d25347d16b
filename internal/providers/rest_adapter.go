package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// RESTConfig configures a generic REST-backed adapter. Token metadata,
// DEX market data, trade simulation, and block explorer all share the
// same "GET a path templated with the address, decode JSON" shape, so a
// single adapter type parameterized by path/kind serves all four instead
// of four near-duplicate files.
type RESTConfig struct {
	ID          string
	BaseURL     string
	PathForKind func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool)
	Chains      []models.Chain
	Header      http.Header
	HTTPClient  *http.Client
}

// RESTAdapter is a generic JSON-over-HTTP provider adapter.
type RESTAdapter struct {
	id          string
	baseURL     string
	pathForKind func(c models.Chain, tokenAddress string, kind models.DataKind) (string, bool)
	chains      map[models.Chain]bool
	header      http.Header
	http        *http.Client
}

// NewRESTAdapter builds a RESTAdapter from cfg.
func NewRESTAdapter(cfg RESTConfig) *RESTAdapter {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Second}
	}
	chains := make(map[models.Chain]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains[c] = true
	}
	return &RESTAdapter{
		id:          cfg.ID,
		baseURL:     cfg.BaseURL,
		pathForKind: cfg.PathForKind,
		chains:      chains,
		header:      cfg.Header,
		http:        httpClient,
	}
}

func (a *RESTAdapter) ID() string { return a.id }

func (a *RESTAdapter) Supports(c models.Chain, kind models.DataKind) bool {
	if !a.chains[c] {
		return false
	}
	_, ok := a.pathForKind(c, "", kind)
	return ok
}

func (a *RESTAdapter) Fetch(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind) (*models.ProviderResponse, error) {
	path, ok := a.pathForKind(c, tokenAddress, kind)
	if !ok {
		return nil, &Error{Class: ClassNotSupported, Message: fmt.Sprintf("%s: does not support %s on %s", a.id, kind, c)}
	}

	start := time.Now()
	full, err := url.JoinPath(a.baseURL, path)
	if err != nil {
		return nil, &Error{Class: ClassMalformed, Message: "build url", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, &Error{Class: ClassTransient, Message: "build request", Cause: err}
	}
	for k, vs := range a.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &Error{Class: ClassTransient, Message: a.id + ": request failed", Cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &Error{Class: ClassRateLimited, Message: a.id + ": rate limited by upstream"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &Error{Class: ClassAuth, Message: a.id + ": rejected credentials"}
	case http.StatusNotFound:
		return nil, &Error{Class: ClassNotFound, Message: a.id + ": token not found"}
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
