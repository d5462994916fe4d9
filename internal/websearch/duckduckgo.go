// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ddgAPIBase is the DuckDuckGo lite endpoint, stable enough for scraping.
// Declared as a var so tests can substitute an httptest server.
var ddgAPIBase = "https://lite.duckduckgo.com/lite/"

// ddgRetryDelay is the initial 429 backoff. Tests override this to avoid
// real sleeps.
var ddgRetryDelay = time.Second

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface. No API key needed,
// so it is the default backend.
type DuckDuckGo struct {
	Client     *http.Client
	maxResults int
	gate       *Limiter
}

// NewDuckDuckGo builds the backend with its shared rate gate.
func NewDuckDuckGo(client *http.Client, maxResults int, perSecond float64) *DuckDuckGo {
	return &DuckDuckGo{
		Client:     client,
		maxResults: maxResults,
		gate:       gateFor("duckduckgo", perSecond),
	}
}

// Name returns the backend identifier.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query to the lite page and scrapes the result table.
// On 429 it records the backoff on the shared gate and retries with a
// doubling delay, capped at 30 s.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}

	if err := d.gate.Wait(ctx); err != nil {
		return nil, err
	}

	formData := url.Values{}
	formData.Set("q", query)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	var resp *http.Response
	delay := ddgRetryDelay
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ddgAPIBase, strings.NewReader(formData.Encode()))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

		resp, err = client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling duckduckgo: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		d.gate.RecordRateLimitError(delay)
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
		return nil, fmt.Errorf("duckduckgo returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return d.parseLite(string(body)), nil
}

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>(.*?)</a>`)
	ddgAltLinkRe = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>(.*?)</td>`)
)

// parseLite extracts ranked results from the lite page markup. Link and
// snippet cells appear in document order, one pair per result.
func (d *DuckDuckGo) parseLite(page string) []types.SearchResult {
	matches := ddgLinkRe.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		matches = ddgAltLinkRe.FindAllStringSubmatch(page, -1)
	}
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, -1)

	var results []types.SearchResult
	for i, m := range matches {
		link := strings.TrimSpace(m[1])
		title := cleanText(m[2])
		if link == "" || title == "" || strings.HasPrefix(link, "/") {
			continue
		}

		snippet := ""
		if i < len(snippets) {
			snippet = cleanText(snippets[i][1])
		}

		results = append(results, types.SearchResult{
			Title:   title,
			URL:     link,
			Snippet: snippet,
			Backend: d.Name(),
			Rank:    len(results) + 1,
		})
		if len(results) >= d.maxResults {
			break
		}
	}
	return results
}
