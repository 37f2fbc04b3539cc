// Package llm turns questions into SQL with a language model: provider
// construction, an explicit model cache, prompt building and SQL extraction.
package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"text2sql/internal/apperrors"
)

// Provider selects the client used for a model
type Provider string

const (
	// ProviderOpenAI covers every OpenAI-compatible endpoint (DeepSeek, Qwen, vLLM, ...)
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ModelConfig describes one model endpoint
type ModelConfig struct {
	Provider    Provider `json:"provider" yaml:"provider"`
	Name        string   `json:"model_name" yaml:"model_name"`
	APIKey      string   `json:"-" yaml:"-"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
}

// ID is the cache key for a config: provider, endpoint and model name
func (c ModelConfig) ID() string {
	p := c.Provider
	if p == "" {
		p = ProviderOpenAI
	}
	if c.BaseURL == "" {
		return fmt.Sprintf("%s/%s", p, c.Name)
	}
	return fmt.Sprintf("%s/%s@%s", p, c.Name, c.BaseURL)
}

// Validate reports a missing model name or an unknown provider
func (c ModelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: model name is required", apperrors.ErrConfiguration)
	}
	switch c.Provider {
	case "", ProviderOpenAI, ProviderAnthropic:
		return nil
	default:
		return fmt.Errorf("%w: unknown model provider %q", apperrors.ErrConfiguration, c.Provider)
	}
}

// NewModel builds the client for cfg
func NewModel(cfg ModelConfig) (llms.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicModel(cfg), nil
	default:
		opts := []openai.Option{openai.WithModel(cfg.Name)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrModelLoad, cfg.Name, err)
		}
		return m, nil
	}
}

// callOptions maps the config onto langchaingo call options
func (c ModelConfig) callOptions() []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(c.Temperature)}
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	return opts
}
