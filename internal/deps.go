package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/cardsmith/internal/convert"
	"github.com/starford/cardsmith/internal/llm"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/session"
	"github.com/starford/cardsmith/internal/vocab"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger initializes the structured JSON logger and makes it the default.
func (a *application) newLogger(fallback io.Writer) *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = fallback
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func (a *application) newVocabulary() (*vocab.Store, error) {
	vs, err := vocab.NewStore(a.config.Vocabulary.Path)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	return vs, nil
}

// newConverter builds the row converter on the configured generator.
func (a *application) newConverter(ctx context.Context, vs *vocab.Store, logger *slog.Logger) (*convert.Converter, error) {
	gen := a.generator
	if gen == nil {
		cfg := a.config.LLM
		if cfg.APIKey == "" {
			logger.Warn("llm: api_key is empty, conversions will fail until it is set")
		}
		var err error
		if gen, err = llm.New(ctx, cfg.Options()); err != nil {
			return nil, fmt.Errorf("init llm: %w", err)
		}
	}
	return convert.New(gen, func() *rules.Schema { return vs.Current().RuleSchema() }, logger), nil
}

func (a *application) newSessionStore() (session.Store, error) {
	cfg := a.config.Session
	switch cfg.Store {
	case SessionStoreSQLite:
		db, err := session.OpenSQLite(a.config.SQLite.Path, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open session db: %w", err)
		}
		return db, nil
	default:
		return session.NewMemory(cfg.TTL), nil
	}
}
