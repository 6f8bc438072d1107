// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cardsmith/internal/api"
	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/session"
	"github.com/starford/cardsmith/internal/sse"
	"github.com/starford/cardsmith/internal/vocab"
	"github.com/starford/cardsmith/internal/web"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger(os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("session_store", cfg.Session.Store),
		slog.String("vocabulary_path", cfg.Vocabulary.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	vs, err := app.newVocabulary()
	if err != nil {
		return err
	}
	conv, err := app.newConverter(ctx, vs, logger)
	if err != nil {
		return err
	}
	store, err := app.newSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	ctrl := page.New(store, conv, vs, broker, logger)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: newRouter(cfg, ctrl, broker, store, vs, logger),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vocabulary.Watch {
		g.Go(func() error {
			if err := vs.Watch(gCtx, logger); err != nil {
				logger.Warn("vocab: watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if sw, ok := store.(session.Sweeper); ok && cfg.Session.TTL > 0 && cfg.Session.SweepInterval > 0 {
		g.Go(func() error {
			sweepSessions(gCtx, sw, cfg.Session.SweepInterval, logger)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the background workers stop with the
// server.
var errShutdown = errors.New("shutdown")

func newRouter(cfg *Config, ctrl *page.Controller, broker *sse.Broker, store session.Store, vs *vocab.Store, logger *slog.Logger) http.Handler {
	routes := api.RouterConfig{
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		Token:        cfg.Auth.Token,
		CookieName:   cfg.Session.CookieName,
		SecureCookie: cfg.Session.SecureCookie,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ready(r.Context(), store, vs); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, the HTML editor at the root.
	r.Mount("/api", api.NewRouter(ctrl, broker, routes))
	r.Mount("/", web.NewRouter(ctrl, logger, routes))

	return r
}

// ready reports whether the session store answers and a vocabulary is loaded.
func ready(ctx context.Context, store session.Store, vs *vocab.Store) error {
	if vs.Current() == nil {
		return errors.New("no vocabulary loaded")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := store.Get(ctx, "readiness-probe"); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

func sweepSessions(ctx context.Context, sw session.Sweeper, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sw.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}
