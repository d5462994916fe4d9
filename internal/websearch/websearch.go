// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package websearch implements the web search backends that supply evidence
// candidates. Every backend paces itself through a process-wide per-backend
// rate gate, the one resource concurrent sessions share.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Backend is a single web search source. Search returns ranked results with
// Backend and Rank populated; implementations cap their own result count.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]types.SearchResult, error)
}

// FromConfig builds the enabled backends in cfg.Backends order. Backends
// whose API key is missing are skipped with a warning on w; an unknown
// backend name is an error.
func FromConfig(cfg types.SearchConfig, client *http.Client, w io.Writer) ([]Backend, error) {
	maxResults := cfg.PerBackendResults
	if maxResults <= 0 {
		maxResults = 3
	}

	var backends []Backend
	for _, name := range cfg.Backends {
		switch name {
		case "duckduckgo":
			backends = append(backends, NewDuckDuckGo(client, maxResults, cfg.RatePerSecond))
		case "searxng":
			baseURL := cfg.SearxngURL
			if baseURL == "" {
				baseURL = "http://localhost:8888"
			}
			backends = append(backends, NewSearxng(baseURL, client, maxResults, cfg.RatePerSecond))
		case "brave":
			if cfg.BraveAPIKey == "" {
				fmt.Fprintf(w, "warning: brave backend skipped: no API key\n")
				continue
			}
			backends = append(backends, NewBrave(cfg.BraveAPIKey, client, maxResults, cfg.RatePerSecond))
		case "tavily":
			if cfg.TavilyAPIKey == "" {
				fmt.Fprintf(w, "warning: tavily backend skipped: no API key\n")
				continue
			}
			backends = append(backends, NewTavily(cfg.TavilyAPIKey, client, maxResults, cfg.RatePerSecond))
		default:
			return nil, fmt.Errorf("unknown search backend %q", name)
		}
	}
	return backends, nil
}

var reTag = regexp.MustCompile(`<[^>]+>`)

// cleanText strips residual tags and entities from scraped fragments.
func cleanText(s string) string {
	s = reTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(s)
}
