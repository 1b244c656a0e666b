package llm

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when a backend answers without any content
var ErrEmptyReply = errors.New("llm returned an empty reply")

// Message is a chat turn in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Option tunes a single call
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the provider default
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// Apply folds opts over defaults
func Apply(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// LLMProvider is implemented by every model backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the reply
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
