// Package llm sends a single prompt to a text generation model and returns
// the reply text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Generator returns the model's text reply to prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrUnexpectedResponse is returned when the reply carries no text.
var ErrUnexpectedResponse = errors.New("llm: unexpected response format")

// StatusError is returned for a non-200 reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: request failed with status %d: %s", e.Code, e.Body)
}

// Provider names.
const (
	ProviderREST  = "rest"
	ProviderGenAI = "genai"
)

// Defaults.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 120 * time.Second
)

// Options configure a provider.
type Options struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// New builds the generator selected by opts.Provider.
func New(ctx context.Context, opts Options) (Generator, error) {
	opts = opts.withDefaults()
	switch opts.Provider {
	case ProviderREST, "":
		return NewREST(opts), nil
	case ProviderGenAI:
		return NewGenAI(ctx, opts)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
}
