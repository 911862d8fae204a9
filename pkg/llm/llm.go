package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// Completer is a single-shot text completion: a system instruction plus a user
// prompt in, raw model text out.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, system, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// ModelCompleter runs completions against any langchaingo model behind a
// token-bucket limiter.
type ModelCompleter struct {
	model       llms.Model
	limiter     *rate.Limiter
	maxTokens   int
	temperature float64
	jsonMode    bool
}

// Option configures a ModelCompleter.
type Option func(*ModelCompleter)

// WithRateLimit caps outgoing requests per second. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ModelCompleter) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithMaxTokens(n int) Option {
	return func(c *ModelCompleter) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *ModelCompleter) { c.temperature = t }
}

// WithJSONMode asks providers that support it to constrain output to JSON.
func WithJSONMode(enabled bool) Option {
	return func(c *ModelCompleter) { c.jsonMode = enabled }
}

func NewModelCompleter(model llms.Model, opts ...Option) *ModelCompleter {
	c := &ModelCompleter{
		model:     model,
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ModelCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Join(ErrRateLimited, err)
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	}
	if c.jsonMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", errors.Join(ErrCompletionFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
