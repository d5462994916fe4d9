package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// testRate keeps the shared gates effectively open during tests.
const testRate = 1000.0

func TestMain(m *testing.M) {
	// Override backoffs to avoid real sleeps in retry tests.
	ddgRetryDelay = time.Millisecond
	tavilyRetryDelay = time.Millisecond
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// --- DuckDuckGo ---

const ddgLitePage = `<html><body><table>
<tr><td><a rel="nofollow" class="result-link" href="https://example.com/a">First &amp; Best</a></td></tr>
<tr><td class="result-snippet">Snippet one.</td></tr>
<tr><td><a rel="nofollow" class="result-link" href="https://example.org/b">Second Hit</a></td></tr>
<tr><td class="result-snippet">Snippet <b>two</b>.</td></tr>
<tr><td><a rel="nofollow" class="result-link" href="https://example.net/c">Third Hit</a></td></tr>
<tr><td class="result-snippet">Snippet three.</td></tr>
</table></body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		gotQuery = r.PostFormValue("q")
		w.Write([]byte(ddgLitePage))
	}))
	defer server.Close()

	oldBase := ddgAPIBase
	ddgAPIBase = server.URL
	defer func() { ddgAPIBase = oldBase }()

	d := NewDuckDuckGo(server.Client(), 2, testRate)
	results, err := d.Search(context.Background(), "solid state batteries")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "solid state batteries" {
		t.Errorf("posted query = %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (capped)", len(results))
	}
	if results[0].Title != "First & Best" {
		t.Errorf("title = %q, want decoded entities", results[0].Title)
	}
	if results[0].URL != "https://example.com/a" {
		t.Errorf("url = %q", results[0].URL)
	}
	if results[1].Snippet != "Snippet two." {
		t.Errorf("snippet = %q, want tags stripped", results[1].Snippet)
	}
	for i, r := range results {
		if r.Backend != "duckduckgo" {
			t.Errorf("result[%d].Backend = %q", i, r.Backend)
		}
		if r.Rank != i+1 {
			t.Errorf("result[%d].Rank = %d, want %d", i, r.Rank, i+1)
		}
	}
}

func TestDuckDuckGoRetriesOn429(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(ddgLitePage))
	}))
	defer server.Close()

	oldBase := ddgAPIBase
	ddgAPIBase = server.URL
	defer func() { ddgAPIBase = oldBase }()

	d := NewDuckDuckGo(server.Client(), 3, testRate)
	results, err := d.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestDuckDuckGoEmptyQuery(t *testing.T) {
	d := NewDuckDuckGo(nil, 3, testRate)
	if _, err := d.Search(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

// --- Searxng ---

func TestSearxngSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q, want json", got)
		}
		if got := r.URL.Query().Get("q"); got != "fusion startups" {
			t.Errorf("q = %q", got)
		}
		json.NewEncoder(w).Encode(searxngResponse{Results: []searxngResult{
			{Title: "A", URL: "https://a.example.com", Content: "first", Score: 9.1},
			{Title: "B", URL: "https://b.example.com", Content: "second", Score: 5.0},
			{Title: "no url", URL: "", Content: "dropped"},
			{Title: "C", URL: "https://c.example.com", Content: "third", Score: 1.2},
		}})
	}))
	defer server.Close()

	s := NewSearxng(server.URL, server.Client(), 2, testRate)
	results, err := s.Search(context.Background(), "fusion startups")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (capped)", len(results))
	}
	if results[0].URL != "https://a.example.com" || results[1].URL != "https://b.example.com" {
		t.Errorf("results out of order: %+v", results)
	}
	if results[0].Backend != "searxng" || results[0].Rank != 1 {
		t.Errorf("backend/rank not set: %+v", results[0])
	}
}

func TestSearxngServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewSearxng(server.URL, server.Client(), 3, testRate)
	if _, err := s.Search(context.Background(), "query"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// --- Brave ---

func TestBraveSearch(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		w.Header().Set("X-RateLimit-Remaining", "5, 1000")
		w.Write([]byte(`{"web": {"results": [
			{"title": "One", "url": "https://one.example.com", "description": "d1"},
			{"title": "Two", "url": "https://two.example.com", "description": "d2"}
		]}}`))
	}))
	defer server.Close()

	oldBase := braveAPIBase
	braveAPIBase = server.URL
	defer func() { braveAPIBase = oldBase }()

	b := NewBrave("token-123", server.Client(), 3, testRate)
	results, err := b.Search(context.Background(), "grid storage")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotToken != "token-123" {
		t.Errorf("X-Subscription-Token = %q", gotToken)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[1].Snippet != "d2" || results[1].Rank != 2 || results[1].Backend != "brave" {
		t.Errorf("result[1] = %+v", results[1])
	}
}

func TestBraveSecondsRemaining(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"0, 14832", 0, true},
		{"5, 100", 5, true},
		{"3", 3, true},
		{"", 0, false},
		{"junk, 100", 0, false},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.raw != "" {
			h.Set("X-RateLimit-Remaining", tt.raw)
		}
		got, ok := braveSecondsRemaining(h)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("braveSecondsRemaining(%q) = (%d, %v), want (%d, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBraveExhaustedBucketOpensBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0, 1000")
		json.NewEncoder(w).Encode(braveResponse{})
	}))
	defer server.Close()

	oldBase := braveAPIBase
	braveAPIBase = server.URL
	defer func() { braveAPIBase = oldBase }()

	b := NewBrave("token", server.Client(), 3, testRate)
	if _, err := b.Search(context.Background(), "query"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	b.gate.mu.Lock()
	retryAt := b.gate.retryAt
	b.gate.mu.Unlock()
	if !retryAt.After(time.Now()) {
		t.Error("expected a backoff window after an exhausted per-second bucket")
	}
	// Clear the window so later tests sharing the gate do not stall.
	b.gate.mu.Lock()
	b.gate.retryAt = time.Time{}
	b.gate.mu.Unlock()
}

// --- Tavily ---

func TestTavilySearch(t *testing.T) {
	var gotReq tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"results": [{"title": "T1", "url": "https://t1.example.com", "content": "c1"}]}`))
	}))
	defer server.Close()

	oldBase := tavilyAPIBase
	tavilyAPIBase = server.URL
	defer func() { tavilyAPIBase = oldBase }()

	tv := NewTavily("tavily-key", server.Client(), 3, testRate)
	results, err := tv.Search(context.Background(), "perovskite cells")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotReq.Query != "perovskite cells" || gotReq.APIKey != "tavily-key" {
		t.Errorf("request = %+v", gotReq)
	}
	if len(results) != 1 || results[0].Backend != "tavily" {
		t.Errorf("results = %+v", results)
	}
}

func TestTavilyRetriesOn429(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		// The body must survive retries intact.
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			t.Errorf("retried request lost its body: %v (%+v)", err, req)
		}
		json.NewEncoder(w).Encode(tavilyResponse{})
	}))
	defer server.Close()

	oldBase := tavilyAPIBase
	tavilyAPIBase = server.URL
	defer func() { tavilyAPIBase = oldBase }()

	tv := NewTavily("key", server.Client(), 3, testRate)
	if _, err := tv.Search(context.Background(), "query"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Clear the 429 backoff window for later tests sharing the gate.
	tv.gate.mu.Lock()
	tv.gate.retryAt = time.Time{}
	tv.gate.mu.Unlock()
}

// --- FromConfig ---

func TestFromConfig(t *testing.T) {
	cfg := types.SearchConfig{
		Backends:          []string{"duckduckgo", "brave", "searxng", "tavily"},
		PerBackendResults: 3,
		RatePerSecond:     testRate,
		TavilyAPIKey:      "tk",
	}

	var warnings strings.Builder
	backends, err := FromConfig(cfg, nil, &warnings)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	// Brave has no key and is skipped; the rest keep config order.
	wantNames := []string{"duckduckgo", "searxng", "tavily"}
	if len(backends) != len(wantNames) {
		t.Fatalf("got %d backends, want %d", len(backends), len(wantNames))
	}
	for i, want := range wantNames {
		if backends[i].Name() != want {
			t.Errorf("backend[%d] = %q, want %q", i, backends[i].Name(), want)
		}
	}
	if !strings.Contains(warnings.String(), "brave backend skipped") {
		t.Errorf("warnings = %q, want brave skip notice", warnings.String())
	}
}

func TestFromConfigUnknownBackend(t *testing.T) {
	cfg := types.SearchConfig{Backends: []string{"altavista"}}
	if _, err := FromConfig(cfg, nil, &strings.Builder{}); err == nil {
		t.Fatal("expected error for unknown backend name")
	}
}

func TestFromConfigSearxngDefaultURL(t *testing.T) {
	cfg := types.SearchConfig{Backends: []string{"searxng"}, RatePerSecond: testRate}
	backends, err := FromConfig(cfg, nil, &strings.Builder{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	s, ok := backends[0].(*Searxng)
	if !ok {
		t.Fatalf("backend is %T, want *Searxng", backends[0])
	}
	if s.BaseURL != "http://localhost:8888" {
		t.Errorf("BaseURL = %q, want default", s.BaseURL)
	}
}

// --- rate gates ---

func TestGateForSharedInstance(t *testing.T) {
	a := gateFor("gate-test-shared", testRate)
	b := gateFor("gate-test-shared", 1)
	if a != b {
		t.Error("same backend name should share one gate")
	}
	c := gateFor("gate-test-other", testRate)
	if a == c {
		t.Error("different backend names should have distinct gates")
	}
}

func TestLimiterBackoffWindow(t *testing.T) {
	l := gateFor("gate-test-backoff", testRate)
	l.RecordRateLimitError(20 * time.Millisecond)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v, want at least 20ms", elapsed)
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := gateFor("gate-test-cancel", testRate)
	l.RecordRateLimitError(time.Minute)
	defer func() {
		l.mu.Lock()
		l.retryAt = time.Time{}
		l.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error while waiting out a backoff window")
	}
}

// --- cleanText ---

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"<b>bold</b> text", "bold text"},
		{"a &amp; b", "a & b"},
		{"  padded  ", "padded"},
		{"&quot;quoted&quot;", `"quoted"`},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
