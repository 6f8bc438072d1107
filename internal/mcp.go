package internal

import (
	"context"
	"log/slog"
	"os"

	"github.com/starford/cardsmith/internal/mcpserver"
)

// ServeMCP serves the MCP tools over stdin/stdout until the client
// disconnects. Logs go to stderr so they never mix with the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger(os.Stderr)

	vs, err := app.newVocabulary()
	if err != nil {
		return err
	}
	conv, err := app.newConverter(ctx, vs, logger)
	if err != nil {
		logger.Warn("mcp: convert_row disabled", slog.String("error", err.Error()))
	}

	if app.config.Vocabulary.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := vs.Watch(watchCtx, logger); err != nil {
				logger.Warn("vocab: watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(vs, conv, logger).ServeStdio()
}
