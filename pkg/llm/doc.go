// Package llm provides the text-completion capability used for notification
// priority classification.
//
// The Completer interface is deliberately narrow. ModelCompleter implements it
// on top of github.com/tmc/langchaingo models (OpenAI or Anthropic, chosen by
// Config) with a golang.org/x/time/rate limiter in front of the provider.
// Func adapts plain functions and is what tests use.
package llm
