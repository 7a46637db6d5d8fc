package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Backend names accepted by New.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New returns the backend named by cfg.Backend. An empty backend is
// inferred from the model name.
func New(ctx context.Context, cfg Config) (Provider, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendOpenAI
		if IsGemini(cfg.Model) {
			backend = BackendGemini
		}
	}
	switch backend {
	case BackendOpenAI:
		return NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, HTTPClient: cfg.HTTPClient}), nil
	case BackendGemini:
		base := cfg.BaseURL
		// config files written before api_url defaulted to empty carry the
		// OpenAI endpoint
		if normalizeBaseURL(base) == DefaultOpenAIURL {
			base = ""
		}
		g, err := NewGemini(ctx, GeminiConfig{APIKey: cfg.APIKey, BaseURL: base, HTTPClient: cfg.HTTPClient})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", backend)
	}
}
