// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint. Declared as a var so tests
// can substitute an httptest server.
var tavilyAPIBase = "https://api.tavily.com/search"

// tavilyRetryDelay is the initial 429 backoff. Tests override this to avoid
// real sleeps.
var tavilyRetryDelay = time.Second

// Tavily queries the Tavily search API. Requires an API key.
type Tavily struct {
	APIKey     string
	Client     *http.Client
	maxResults int
	gate       *Limiter
}

// NewTavily builds the backend with its shared rate gate.
func NewTavily(apiKey string, client *http.Client, maxResults int, perSecond float64) *Tavily {
	return &Tavily{
		APIKey:     apiKey,
		Client:     client,
		maxResults: maxResults,
		gate:       gateFor("tavily", perSecond),
	}
}

// Name returns the backend identifier.
func (t *Tavily) Name() string { return "tavily" }

// tavilyRequest is the JSON request body.
type tavilyRequest struct {
	Query  string `json:"query"`
	APIKey string `json:"api_key"`
	Depth  string `json:"depth"`
}

// tavilyResponse is the JSON response envelope.
type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts the query. On 429 it records the backoff on the shared gate
// and retries with a doubling delay, capped at 30 s. The request is rebuilt
// each attempt because its body is consumed by the previous send.
func (t *Tavily) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	payload, err := json.Marshal(tavilyRequest{Query: query, APIKey: t.APIKey, Depth: "basic"})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	if err := t.gate.Wait(ctx); err != nil {
		return nil, err
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	var resp *http.Response
	delay := tavilyRetryDelay
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIBase, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling tavily: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		t.gate.RecordRateLimitError(delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned %d", resp.StatusCode)
	}

	var tResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tResp); err != nil {
		return nil, fmt.Errorf("decoding tavily response: %w", err)
	}

	results := make([]types.SearchResult, 0, t.maxResults)
	for _, r := range tResp.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Backend: t.Name(),
			Rank:    len(results) + 1,
		})
		if len(results) >= t.maxResults {
			break
		}
	}
	return results, nil
}
