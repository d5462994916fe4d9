// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate collects web evidence for one question: concurrent
// backend fan-out, URL-normalized dedup, and content enrichment of the top
// results. The merged bundle is deterministic for a given set of backend
// outputs regardless of goroutine scheduling.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/deep-research/internal/websearch"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrAllBackendsFailed is wrapped by Collect when no backend produced
// results. Individual backend failures are absorbed as bundle warnings.
var ErrAllBackendsFailed = errors.New("all search backends failed")

// ContentFetcher retrieves page text for evidence enrichment.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Aggregator merges evidence from the configured backends for one question
// at a time.
type Aggregator struct {
	backends []websearch.Backend
	fetcher  ContentFetcher
	cfg      types.ResearchConfig
}

// New builds an Aggregator. Zero config fields get defaults: 10 merged
// results, top 3 enriched, 15 s per backend call.
func New(backends []websearch.Backend, fetcher ContentFetcher, cfg types.ResearchConfig) *Aggregator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.EnrichTop <= 0 {
		cfg.EnrichTop = 3
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 15 * time.Second
	}
	return &Aggregator{backends: backends, fetcher: fetcher, cfg: cfg}
}

// BuildQuery joins topic, domain, and question text into the backend query,
// skipping empty fields.
func BuildQuery(topic, domain string, q types.Question) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{topic, domain, q.Text} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Collect queries every backend concurrently, merges results, and enriches
// the top of the bundle with fetched page content. Backend and fetch
// failures become bundle warnings (also written to w); only when every
// backend fails does Collect return an error, wrapping ErrAllBackendsFailed.
//
// Merge order is backend configuration order, then backend rank, duplicate
// URLs removed first-seen-wins under NormalizeURL, capped at the configured
// maximum. Results are gathered into slots indexed by backend position so
// the merge never depends on which goroutine finishes first.
func (a *Aggregator) Collect(ctx context.Context, topic, domain string, q types.Question, w io.Writer) (types.EvidenceBundle, error) {
	if len(a.backends) == 0 {
		return types.EvidenceBundle{QuestionID: q.ID}, fmt.Errorf("question %d: %w: no search backends configured", q.ID, ErrAllBackendsFailed)
	}

	query := BuildQuery(topic, domain, q)
	bundle := types.EvidenceBundle{QuestionID: q.ID, Query: query}

	slots := make([][]types.SearchResult, len(a.backends))
	errs := make([]error, len(a.backends))

	var wg sync.WaitGroup
	for i, b := range a.backends {
		wg.Add(1)
		go func(i int, b websearch.Backend) {
			defer wg.Done()
			bctx, cancel := context.WithTimeout(ctx, a.cfg.BackendTimeout)
			defer cancel()
			slots[i], errs[i] = b.Search(bctx, query)
		}(i, b)
	}
	wg.Wait()

	failed := 0
	var causes []string
	for i, b := range a.backends {
		if errs[i] != nil {
			failed++
			causes = append(causes, fmt.Sprintf("%s: %v", b.Name(), errs[i]))
			warn(w, &bundle, "backend %s failed: %v", b.Name(), errs[i])
		}
	}
	if failed == len(a.backends) {
		return bundle, fmt.Errorf("question %d: %w: %s", q.ID, ErrAllBackendsFailed, strings.Join(causes, "; "))
	}

	seen := make(map[string]bool)
	for _, results := range slots {
		for _, r := range results {
			key := NormalizeURL(r.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			bundle.Evidence = append(bundle.Evidence, types.Evidence{SearchResult: r})
			if len(bundle.Evidence) >= a.cfg.MaxResults {
				break
			}
		}
		if len(bundle.Evidence) >= a.cfg.MaxResults {
			break
		}
	}

	a.enrich(ctx, &bundle, w)
	return bundle, nil
}

// enrich fetches page content for the top of the bundle. Membership and
// order never change here; a failed fetch leaves Content empty.
func (a *Aggregator) enrich(ctx context.Context, bundle *types.EvidenceBundle, w io.Writer) {
	if a.fetcher == nil {
		return
	}

	top := a.cfg.EnrichTop
	if top > len(bundle.Evidence) {
		top = len(bundle.Evidence)
	}

	contents := make([]string, top)
	errs := make([]error, top)

	var wg sync.WaitGroup
	for i := 0; i < top; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			contents[i], errs[i] = a.fetcher.Fetch(ctx, bundle.Evidence[i].URL)
		}(i)
	}
	wg.Wait()

	for i := 0; i < top; i++ {
		if errs[i] != nil {
			warn(w, bundle, "fetch %s failed: %v", bundle.Evidence[i].URL, errs[i])
			continue
		}
		bundle.Evidence[i].Content = contents[i]
	}
}

// warn records an absorbed failure on the bundle and echoes it to w.
func warn(w io.Writer, bundle *types.EvidenceBundle, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	bundle.Warnings = append(bundle.Warnings, msg)
	if w != nil {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}
