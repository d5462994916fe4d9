// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Searxng queries a self-hosted SearXNG metasearch instance over its JSON API.
type Searxng struct {
	BaseURL    string
	Client     *http.Client
	maxResults int
	gate       *Limiter
}

// NewSearxng builds the backend with its shared rate gate.
func NewSearxng(baseURL string, client *http.Client, maxResults int, perSecond float64) *Searxng {
	return &Searxng{
		BaseURL:    baseURL,
		Client:     client,
		maxResults: maxResults,
		gate:       gateFor("searxng", perSecond),
	}
}

// Name returns the backend identifier.
func (s *Searxng) Name() string { return "searxng" }

// searxngResponse is the JSON API response envelope.
type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// searxngResult is a single hit. Score is the instance's own ranking value.
type searxngResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

// Search calls GET {base}/search?q=...&format=json and returns the capped
// result list in instance order.
func (s *Searxng) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", s.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("calling searxng: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned %d", resp.StatusCode)
	}

	var payload searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding searxng response: %w", err)
	}

	results := make([]types.SearchResult, 0, s.maxResults)
	for _, r := range payload.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Backend: s.Name(),
			Rank:    len(results) + 1,
		})
		if len(results) >= s.maxResults {
			break
		}
	}
	return results, nil
}
