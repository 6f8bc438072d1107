package internal

import (
	"io"

	"github.com/starford/cardsmith/internal/llm"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	generator llm.Generator
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithGenerator replaces the configured LLM provider.
func WithGenerator(gen llm.Generator) Option {
	return func(a *application) {
		a.generator = gen
	}
}

// WithLogOutput sets where logs are written. The default is stdout, except
// for the MCP server which writes to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
