// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// braveAPIBase is the Brave web search endpoint. Declared as a var so tests
// can substitute an httptest server.
var braveAPIBase = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave Search API. Requires a subscription token.
type Brave struct {
	APIKey     string
	Client     *http.Client
	maxResults int
	gate       *Limiter
}

// NewBrave builds the backend with its shared rate gate.
func NewBrave(apiKey string, client *http.Client, maxResults int, perSecond float64) *Brave {
	return &Brave{
		APIKey:     apiKey,
		Client:     client,
		maxResults: maxResults,
		gate:       gateFor("brave", perSecond),
	}
}

// Name returns the backend identifier.
func (b *Brave) Name() string { return "brave" }

// braveResponse is the subset of the API response the pipeline uses.
type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search issues the query and, when the per-second bucket reported by the
// rate-limit headers is exhausted, opens a backoff window on the shared gate
// so the next caller paces itself.
func (b *Brave) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if err := b.gate.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s?q=%s", braveAPIBase, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("calling brave: %w", err)
	}
	defer resp.Body.Close()

	if remaining, ok := braveSecondsRemaining(resp.Header); ok && remaining <= 0 {
		b.gate.RecordRateLimitError(time.Second)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned %d", resp.StatusCode)
	}

	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding brave response: %w", err)
	}

	results := make([]types.SearchResult, 0, b.maxResults)
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
			Backend: b.Name(),
			Rank:    len(results) + 1,
		})
		if len(results) >= b.maxResults {
			break
		}
	}
	return results, nil
}

// braveSecondsRemaining parses X-RateLimit-Remaining, a comma-separated pair
// of per-second and per-month counts (e.g. "0, 14832").
func braveSecondsRemaining(h http.Header) (int, bool) {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return 0, false
	}
	parts := strings.SplitN(raw, ",", 2)
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}
