// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves page content for evidence enrichment. Reads are
// bounded and the result is plain text; callers treat any failure here as
// non-fatal.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

const defaultMaxBytes = 32 * 1024

// Fetcher downloads a page and extracts its text.
type Fetcher struct {
	Client *http.Client
	cfg    types.FetchConfig
}

// New builds a Fetcher from config. A nil client falls back to
// http.DefaultClient with the configured timeout applied per request context.
func New(client *http.Client, cfg types.FetchConfig) *Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{Client: client, cfg: cfg}
}

// Fetch downloads the URL, reads at most the configured byte cap, and
// returns the page text with markup stripped.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	trimmed := strings.TrimSpace(pageURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty URL")
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", trimmed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: HTTP %d", trimmed, resp.StatusCode)
	}

	// Only textual bodies are usable as evidence; a PDF or image byte
	// stream would otherwise end up in the model prompt.
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	isHTML := contentType == "" || strings.Contains(contentType, "html")
	if !isHTML && !strings.HasPrefix(contentType, "text/") {
		return "", fmt.Errorf("fetching %s: unsupported content type %q", trimmed, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", trimmed, err)
	}

	if isHTML {
		return StripHTML(string(body)), nil
	}
	return collapseWhitespace(string(body)), nil
}
