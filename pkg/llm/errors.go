package llm

import "errors"

var (
	ErrDisabled         = errors.New("llm: provider disabled")
	ErrInvalidConfig    = errors.New("llm: invalid config")
	ErrRateLimited      = errors.New("llm: rate limiter rejected request")
	ErrCompletionFailed = errors.New("llm: completion failed")
	ErrEmptyResponse    = errors.New("llm: empty response")
)
