package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/export"
	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/sse"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	ctrl   *page.Controller
	events *sse.Broker
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(ctrl *page.Controller, events *sse.Broker) *Handler {
	return &Handler{ctrl: ctrl, events: events}
}

// cardIndex parses the {index} URL parameter.
func cardIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: card index must be a non-negative integer", apperr.ErrInvalidInput)
	}
	return i, nil
}

// Schema handles GET /api/schema.
//
//	@Summary		Vocabulary and rule field schema
//	@Tags			schema
//	@Produce		json
//	@Success		200	{object}	SchemaResponse
//	@Router			/schema [get]
func (h *Handler) Schema(w http.ResponseWriter, _ *http.Request) {
	cat := h.ctrl.Catalog()
	writeJSON(w, http.StatusOK, SchemaResponse{
		Channels:     cat.Channels(),
		Tags:         cat.Tags,
		RuleFields:   cat.RuleFields,
		Operators:    rules.Operators,
		Conjunctions: rules.Conjunctions,
	})
}

// ParseRule handles POST /api/rules/parse.
//
//	@Summary		Parse a free-text eligibility rule
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ParseRuleRequest	true	"Rule text"
//	@Success		200		{object}	ParseRuleResponse
//	@Failure		400		{object}	errResponse
//	@Router			/rules/parse [post]
func (h *Handler) ParseRule(w http.ResponseWriter, r *http.Request) {
	var req ParseRuleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	switch res := h.ctrl.Catalog().RuleSchema().Parse(req.Rule).(type) {
	case rules.Parsed:
		writeJSON(w, http.StatusOK, ParseRuleResponse{Recognized: true, Rule: res.Leaf})
	case rules.Unrecognized:
		writeJSON(w, http.StatusOK, ParseRuleResponse{Reason: res.Reason})
	}
}

// CurrentUpload handles GET /api/uploads/current.
//
//	@Summary		Describe the current upload with a row preview
//	@Tags			uploads
//	@Produce		json
//	@Param			limit	query		int	false	"Preview rows (default 5)"
//	@Success		200		{object}	page.UploadResult
//	@Failure		409		{object}	errResponse
//	@Router			/uploads/current [get]
func (h *Handler) CurrentUpload(w http.ResponseWriter, r *http.Request) {
	sess := SessionFrom(r.Context())
	res, err := h.ctrl.Current(sess)
	if err != nil {
		writeError(w, "current upload", err)
		return
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 {
		res.Preview, _ = h.ctrl.Preview(sess, limit)
	}
	writeJSON(w, http.StatusOK, res)
}

// Convert handles POST /api/convert. Progress is streamed on /api/events.
//
//	@Summary		Generate cards for every row of the current upload
//	@Tags			cards
//	@Produce		json
//	@Success		200	{object}	ConvertResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	cards, err := h.ctrl.Convert(r.Context(), SessionFrom(r.Context()), nil)
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertResponse{Cards: cards})
}

// ListCards handles GET /api/cards.
//
//	@Summary		List the generated cards
//	@Tags			cards
//	@Produce		json
//	@Success		200	{object}	CardListResponse
//	@Failure		409	{object}	errResponse
//	@Router			/cards [get]
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.ctrl.Cards(SessionFrom(r.Context()))
	if err != nil {
		writeError(w, "list cards", err)
		return
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: cards})
}

func (h *Handler) writeCard(w http.ResponseWriter, r *http.Request, i int, c *card.Card) {
	discarded, _ := h.ctrl.Discarded(SessionFrom(r.Context()), i)
	etag := page.ETag(c)
	w.Header().Set("ETag", `"`+etag+`"`)
	writeJSON(w, http.StatusOK, CardResponse{Index: i, ETag: etag, Card: c, Discarded: discarded})
}

// GetCard handles GET /api/cards/{index}.
//
//	@Summary		Get one card
//	@Tags			cards
//	@Produce		json
//	@Param			index	path		int	true	"Card index"
//	@Success		200		{object}	CardResponse
//	@Failure		404		{object}	errResponse
//	@Router			/cards/{index} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "get card", err)
		return
	}
	c, err := h.ctrl.Card(SessionFrom(r.Context()), i)
	if err != nil {
		writeError(w, "get card", err)
		return
	}
	h.writeCard(w, r, i, c)
}

// ReplaceCard handles PUT /api/cards/{index}.
//
//	@Summary		Replace a card with optimistic concurrency
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			index		path		int			true	"Card index"
//	@Param			If-Match	header		string		false	"ETag from a previous read"
//	@Param			body		body		card.Card	true	"Card document"
//	@Success		200			{object}	CardResponse
//	@Failure		400			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Router			/cards/{index} [put]
func (h *Handler) ReplaceCard(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "replace card", err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	c, err := card.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card JSON"))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	updated, err := h.ctrl.ReplaceCard(r.Context(), SessionFrom(r.Context()), i, c, ifMatch)
	if err != nil {
		writeError(w, "replace card", err)
		return
	}
	h.writeCard(w, r, i, updated)
}

// View handles GET /api/cards/{index}/view.
//
//	@Summary		Render the editor view model of a card
//	@Tags			cards
//	@Produce		json
//	@Param			index	path		int	true	"Card index"
//	@Success		200		{object}	form.View
//	@Failure		404		{object}	errResponse
//	@Router			/cards/{index}/view [get]
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "view card", err)
		return
	}
	v, err := h.ctrl.View(SessionFrom(r.Context()), i)
	if err != nil {
		writeError(w, "view card", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ApplyForm handles POST /api/cards/{index}/form. The body is either
// url-encoded form input or a JSON object of string arrays.
//
//	@Summary		Apply submitted editor form input to a card
//	@Tags			cards
//	@Accept			x-www-form-urlencoded,json
//	@Produce		json
//	@Param			index	path		int	true	"Card index"
//	@Success		200		{object}	FormResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/cards/{index}/form [post]
func (h *Handler) ApplyForm(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "apply form", err)
		return
	}
	input, err := formInput(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess := SessionFrom(r.Context())
	c, warnings, err := h.ctrl.ApplyForm(r.Context(), sess, i, input)
	if err != nil {
		writeError(w, "apply form", err)
		return
	}
	v, _ := h.ctrl.View(sess, i)
	if warnings == nil {
		warnings = []card.Warning{}
	}
	writeJSON(w, http.StatusOK, FormResponse{Card: c, Warnings: warnings, View: v})
}

func formInput(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body")
		}
		return url.Values(raw), nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body")
	}
	return r.PostForm, nil
}

// RuleEvent handles POST /api/cards/{index}/rules/events.
//
//	@Summary		Apply one rule editor event
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int					true	"Card index"
//	@Param			body	body		RuleEventRequest	true	"Event"
//	@Success		200		{object}	CardResponse
//	@Failure		400		{object}	errResponse
//	@Router			/cards/{index}/rules/events [post]
func (h *Handler) RuleEvent(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "rule event", err)
		return
	}
	var req RuleEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ev, err := req.Event()
	if err != nil {
		writeError(w, "rule event", err)
		return
	}
	c, err := h.ctrl.ApplyRuleEvent(r.Context(), SessionFrom(r.Context()), i, ev)
	if err != nil {
		writeError(w, "rule event", err)
		return
	}
	h.writeCard(w, r, i, c)
}

// Validate handles GET /api/cards/{index}/validate.
//
//	@Summary		Lint a card against the vocabulary
//	@Tags			cards
//	@Produce		json
//	@Param			index	path		int	true	"Card index"
//	@Success		200		{object}	ValidateResponse
//	@Failure		404		{object}	errResponse
//	@Router			/cards/{index}/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "validate card", err)
		return
	}
	issues, err := h.ctrl.Validate(SessionFrom(r.Context()), i)
	if err != nil {
		writeError(w, "validate card", err)
		return
	}
	if issues == nil {
		issues = []card.Issue{}
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Issues: issues})
}

// Export handles GET /api/cards/{index}/export as a JSON download.
//
//	@Summary		Download a card as a JSON file
//	@Tags			cards
//	@Produce		json
//	@Param			index	path		int	true	"Card index"
//	@Success		200		{object}	card.Card
//	@Failure		404		{object}	errResponse
//	@Router			/cards/{index}/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	i, err := cardIndex(r)
	if err != nil {
		writeError(w, "export card", err)
		return
	}
	c, err := h.ctrl.Card(SessionFrom(r.Context()), i)
	if err != nil {
		writeError(w, "export card", err)
		return
	}
	data, err := export.Encode(c)
	if err != nil {
		writeError(w, "export card", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, export.FileName(c, i)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Events handles GET /api/events, streaming the session's events.
//
//	@Summary		Stream conversion and edit events
//	@Tags			events
//	@Produce		text/event-stream
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Router			/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusNotFound, errorBody("events disabled"))
		return
	}
	h.events.ServeTopic(w, r, SessionFrom(r.Context()).ID)
}
