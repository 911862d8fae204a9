package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderDisabled  = "disabled"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 256
	defaultRateLimit      = 5.0
	defaultBurst          = 10
)

type Config struct {
	Provider  string  `env:"LLM_PROVIDER" envDefault:"disabled"` // openai, anthropic or disabled
	APIKey    string  `env:"LLM_API_KEY"`
	Model     string  `env:"LLM_MODEL"`
	BaseURL   string  `env:"LLM_BASE_URL"`
	MaxTokens int     `env:"LLM_MAX_TOKENS" envDefault:"256"`
	RateLimit float64 `env:"LLM_RATE_LIMIT" envDefault:"5"` // requests per second
	Burst     int     `env:"LLM_RATE_BURST" envDefault:"10"`
}

// New builds a Completer for the configured provider. It returns ErrDisabled
// when no provider is configured so callers can fall back to rule-based logic.
func New(cfg Config) (Completer, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Provider {
	case "", ProviderDisabled:
		return nil, ErrDisabled
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai API key required", ErrInvalidConfig)
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(valueOr(cfg.Model, defaultOpenAIModel)),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic API key required", ErrInvalidConfig)
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(valueOr(cfg.Model, defaultAnthropicModel)),
		)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return NewModelCompleter(model,
		WithRateLimit(cfg.RateLimit, cfg.Burst),
		WithMaxTokens(cfg.MaxTokens),
		WithJSONMode(cfg.Provider == ProviderOpenAI),
	), nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
