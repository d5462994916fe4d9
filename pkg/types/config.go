package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ModelProvider identifies the LLM API a session talks to.
type ModelProvider string

const (
	ProviderOllama    ModelProvider = "ollama"
	ProviderAnthropic ModelProvider = "anthropic"
)

// ModelConfig holds settings for the LLM client.
type ModelConfig struct {
	// Provider selects the API: ollama or anthropic.
	Provider ModelProvider `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "deepseek-r1:4b"). Must be one of
	// AvailableModels when that list is non-empty; defaults to its first entry.
	Model string `json:"model" yaml:"model"`

	// AvailableModels lists the model identifiers a session may be started with.
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`

	// BaseURL is the Ollama server address (default "http://localhost:11434").
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey is the authentication key for hosted providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds settings for the web search backends.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Backends lists enabled backend names in merge priority order
	// (e.g. ["duckduckgo", "searxng"]).
	Backends []string `json:"backends" yaml:"backends"`

	// PerBackendResults caps how many results each backend returns (default 3).
	PerBackendResults int `json:"per_backend_results" yaml:"per_backend_results"`

	// RatePerSecond is the per-backend request rate shared across sessions
	// (default 1).
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`

	// SearxngURL is the SearXNG instance address (default "http://localhost:8888").
	SearxngURL string `json:"searxng_url" yaml:"searxng_url"`

	// BraveAPIKey authenticates the Brave backend; empty disables it.
	BraveAPIKey string `json:"brave_api_key,omitempty" yaml:"brave_api_key,omitempty"`

	// TavilyAPIKey authenticates the Tavily backend; empty disables it.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty"`
}

// FetchConfig holds settings for page content fetching.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxBytes caps how much of a page body is read (default 32 KiB).
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

// ResearchConfig holds settings for evidence aggregation and answer synthesis.
type ResearchConfig struct {
	// MaxResults caps the merged evidence bundle size (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// BackendTimeout bounds a single backend call during aggregation (default 15s).
	BackendTimeout time.Duration `json:"backend_timeout" yaml:"backend_timeout"`

	// EnrichTop is how many top results get their page content fetched (default 3).
	EnrichTop int `json:"enrich_top" yaml:"enrich_top"`

	// MaxSourceChars truncates fetched content per source when formatting
	// evidence for the model (default 4000).
	MaxSourceChars int `json:"max_source_chars" yaml:"max_source_chars"`

	// QuestionWorkers bounds how many questions collect evidence at once (default 2).
	QuestionWorkers int `json:"question_workers" yaml:"question_workers"`
}

// ReportConfig holds settings for report output.
type ReportConfig struct {
	// OutputDir is where exported report files are written (default "output/reports").
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// StoreConfig holds settings for the session archive.
type StoreConfig struct {
	// Path is the SQLite database file (default "output/deep-research.db").
	Path string `json:"path" yaml:"path"`
}

// SearxngConfig holds settings for the SearXNG container helper.
type SearxngConfig struct {
	// Image is the container image to run (default "searxng/searxng:latest").
	Image string `json:"image" yaml:"image"`

	// Port is the host port the instance listens on (default 8888).
	Port int `json:"port" yaml:"port"`
}

// PipelineConfig groups all component configurations for a session.
type PipelineConfig struct {
	Model    ModelConfig    `json:"model" yaml:"model"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Fetch    FetchConfig    `json:"fetch" yaml:"fetch"`
	Research ResearchConfig `json:"research" yaml:"research"`
	Report   ReportConfig   `json:"report" yaml:"report"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Searxng  SearxngConfig  `json:"searxng" yaml:"searxng"`
}
