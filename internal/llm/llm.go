// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the model client used by every pipeline stage that
// talks to a language model. Implementations exist for a local Ollama server
// and the Anthropic Messages API; the pipeline holds one client per session
// and never issues concurrent calls on it.
package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Client is a unary completion client. Complete sends one prompt and returns
// the raw model text; callers strip reasoning markup before parsing.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// FromConfig builds the client selected by cfg.Provider. When cfg lists
// available models the configured model must be one of them; an empty model
// defaults to the first entry.
func FromConfig(cfg types.ModelConfig, client *http.Client) (Client, error) {
	model := cfg.Model
	if model == "" && len(cfg.AvailableModels) > 0 {
		model = cfg.AvailableModels[0]
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured")
	}
	if len(cfg.AvailableModels) > 0 && !contains(cfg.AvailableModels, model) {
		return nil, fmt.Errorf("model %q is not in available_models %v", model, cfg.AvailableModels)
	}

	switch cfg.Provider {
	case types.ProviderOllama, "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &OllamaClient{BaseURL: baseURL, Model: model, Client: client}, nil
	case types.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return &AnthropicClient{APIKey: cfg.APIKey, Model: model, Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// CompleteWithRetry calls the client with exponential backoff between
// attempts. Retry stays here, inside the client layer; stages fail on the
// returned error without retrying themselves. Zero maxRetries means the
// default of 3; a negative value disables retries.
func CompleteWithRetry(ctx context.Context, c Client, prompt string, maxRetries int) (string, error) {
	if maxRetries == 0 {
		maxRetries = 3
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.Complete(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s: after %d retries: %w", c.Name(), maxRetries, lastErr)
}

// thinkRegex matches the reasoning block some models emit before their answer.
var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks and surrounding
// whitespace from a model response.
func StripReasoning(s string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(s, ""))
}
