package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/sse"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AuthEnabled  bool
	Token        string
	CookieName   string
	SecureCookie bool
}

// NewRouter creates a chi router with all API routes mounted. Every route
// runs with the caller's session resolved. events, if non-nil, is served
// at GET /events inside the auth group.
func NewRouter(ctrl *page.Controller, events *sse.Broker, cfg RouterConfig) chi.Router {
	h := NewHandler(ctrl, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(SessionMiddleware(ctrl, cfg.CookieName, cfg.SecureCookie))

	r.Get("/schema", h.Schema)
	r.Post("/rules/parse", h.ParseRule)

	// Uploads and conversion.
	r.Post("/uploads", h.Upload)
	r.Get("/uploads/current", h.CurrentUpload)
	r.Post("/convert", h.Convert)

	// Cards.
	r.Get("/cards", h.ListCards)
	r.Route("/cards/{index}", func(r chi.Router) {
		r.Get("/", h.GetCard)
		r.Put("/", h.ReplaceCard)
		r.Get("/view", h.View)
		r.Post("/form", h.ApplyForm)
		r.Post("/rules/events", h.RuleEvent)
		r.Get("/validate", h.Validate)
		r.Get("/export", h.Export)
	})

	if events != nil {
		r.Get("/events", h.Events)
	}

	return r
}
