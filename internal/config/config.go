// Package config loads chattree settings from a YAML file and the
// environment.
//
// Settings are plain values. Every generation receives its own copy, so a
// reload never changes a request that is already running.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/chattree/internal/llm"
)

// DefaultSystemPrompt is sent when no ancestor note overrides it.
const DefaultSystemPrompt = `You are a critical-thinking assistant bot. 
Consider the intent of my questions before responding.
Do not restate my information unless I ask for it. 
Do not include caveats or disclaimers.
Use step-by-step reasoning. Be brief.`

// Settings is the user-facing configuration.
type Settings struct {
	// Backend is "openai" or "gemini"; empty picks by model name.
	Backend           string  `yaml:"backend" json:"backend" validate:"omitempty,oneof=openai gemini"`
	APIKey            string  `yaml:"api_key" json:"-"`
	// APIURL overrides the backend's endpoint; empty uses its default.
	APIURL            string  `yaml:"api_url" json:"api_url" validate:"omitempty,url"`
	Model             string  `yaml:"model" json:"model" validate:"required"`
	Temperature       float32 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxInputTokens    int     `yaml:"max_input_tokens" json:"max_input_tokens" validate:"gte=0"`
	MaxResponseTokens int     `yaml:"max_response_tokens" json:"max_response_tokens" validate:"gte=0"`
	MaxDepth          int     `yaml:"max_depth" json:"max_depth" validate:"gte=0"`
	SystemPrompt      string  `yaml:"system_prompt" json:"system_prompt"`
	SearchAPIKey      string  `yaml:"search_api_key" json:"-"`
	SearchURL         string  `yaml:"search_url" json:"search_url" validate:"omitempty,url"`
	Debug             bool    `yaml:"debug" json:"debug"`
	DataDir           string  `yaml:"data_dir" json:"data_dir"`
	MetricsAddr       string  `yaml:"metrics_addr" json:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		Model:        "gpt-3.5-turbo",
		Temperature:  1,
		SystemPrompt: strings.TrimSpace(DefaultSystemPrompt),
		SearchURL:    "https://api.tavily.com/search",
		DataDir:      filepath.Join(home, ".chattree"),
	}
}

// DefaultPath is where the config file lives unless overridden.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chattree", "config.yaml")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	s.ApplyEnv(os.LookupEnv)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes s to path as YAML, creating the directory if needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&s.Backend, "CHATTREE_BACKEND")
	str(&s.Model, "CHATTREE_MODEL")
	str(&s.APIURL, "CHATTREE_API_URL")
	str(&s.DataDir, "CHATTREE_DATA_DIR")
	str(&s.MetricsAddr, "CHATTREE_METRICS_ADDR")
	str(&s.SearchAPIKey, "CHATTREE_SEARCH_API_KEY", "TAVILY_API_KEY")
	if s.Backend == "gemini" || (s.Backend == "" && llm.IsGemini(s.Model)) {
		str(&s.APIKey, "CHATTREE_API_KEY", "GEMINI_API_KEY")
	} else {
		str(&s.APIKey, "CHATTREE_API_KEY", "OPENAI_API_KEY")
	}
	if v, ok := lookup("CHATTREE_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Debug = b
		}
	}
}

var validate = validator.New()

// Validate checks field ranges.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid settings: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}
