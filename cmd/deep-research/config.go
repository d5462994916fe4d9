// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/pkg/types"
)

func init() {
	viper.SetDefault("model.provider", "ollama")
	viper.SetDefault("model.base_url", "http://localhost:11434")
	viper.SetDefault("model.max_retries", 3)

	viper.SetDefault("search.backends", []string{"duckduckgo", "searxng"})
	viper.SetDefault("search.per_backend_results", 3)
	viper.SetDefault("search.rate_per_second", 1.0)
	viper.SetDefault("search.searxng_url", "http://localhost:8888")
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.user_agent", "deep-research/0.1")

	viper.SetDefault("fetch.timeout", "10s")
	viper.SetDefault("fetch.max_bytes", 32*1024)
	viper.SetDefault("fetch.user_agent", "deep-research/0.1")

	viper.SetDefault("research.max_results", 10)
	viper.SetDefault("research.backend_timeout", "15s")
	viper.SetDefault("research.enrich_top", 3)
	viper.SetDefault("research.max_source_chars", 4000)
	viper.SetDefault("research.question_workers", 2)

	viper.SetDefault("report.output_dir", "output/reports")
	viper.SetDefault("store.path", "output/deep-research.db")

	viper.SetDefault("searxng.image", "searxng/searxng:latest")
	viper.SetDefault("searxng.port", 8888)
}

// pipelineConfig assembles the typed configuration from the config file,
// environment, and loaded secrets. Command flags override individual fields
// after this returns.
func pipelineConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Model: types.ModelConfig{
			Provider:        types.ModelProvider(viper.GetString("model.provider")),
			Model:           viper.GetString("model.model"),
			AvailableModels: viper.GetStringSlice("model.available_models"),
			BaseURL:         viper.GetString("model.base_url"),
			APIKey:          secretDefault("anthropic-api-key", viper.GetString("model.api_key")),
			MaxRetries:      viper.GetInt("model.max_retries"),
		},
		Search: types.SearchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   duration("search.timeout", 15*time.Second),
				UserAgent: viper.GetString("search.user_agent"),
			},
			Backends:          viper.GetStringSlice("search.backends"),
			PerBackendResults: viper.GetInt("search.per_backend_results"),
			RatePerSecond:     viper.GetFloat64("search.rate_per_second"),
			SearxngURL:        viper.GetString("search.searxng_url"),
			BraveAPIKey:       secretDefault("brave-api-key", viper.GetString("search.brave_api_key")),
			TavilyAPIKey:      secretDefault("tavily-api-key", viper.GetString("search.tavily_api_key")),
		},
		Fetch: types.FetchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   duration("fetch.timeout", 10*time.Second),
				UserAgent: viper.GetString("fetch.user_agent"),
			},
			MaxBytes: viper.GetInt64("fetch.max_bytes"),
		},
		Research: types.ResearchConfig{
			MaxResults:      viper.GetInt("research.max_results"),
			BackendTimeout:  duration("research.backend_timeout", 15*time.Second),
			EnrichTop:       viper.GetInt("research.enrich_top"),
			MaxSourceChars:  viper.GetInt("research.max_source_chars"),
			QuestionWorkers: viper.GetInt("research.question_workers"),
		},
		Report: types.ReportConfig{
			OutputDir: viper.GetString("report.output_dir"),
		},
		Store: types.StoreConfig{
			Path: viper.GetString("store.path"),
		},
		Searxng: types.SearxngConfig{
			Image: viper.GetString("searxng.image"),
			Port:  viper.GetInt("searxng.port"),
		},
	}
}

// resolveModel applies the model catalog: an empty model defaults to the
// first available entry, and an explicit model must be in the catalog when
// one is configured.
func resolveModel(m *types.ModelConfig) error {
	if len(m.AvailableModels) == 0 {
		return nil
	}
	if m.Model == "" {
		m.Model = m.AvailableModels[0]
		return nil
	}
	for _, id := range m.AvailableModels {
		if id == m.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not in available_models %v", m.Model, m.AvailableModels)
}

func duration(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
