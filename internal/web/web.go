// Package web serves the server-rendered HTML editor.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsmith/internal/api"
	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/export"
	"github.com/starford/cardsmith/internal/form"
	"github.com/starford/cardsmith/internal/jsonenc"
	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxUploadBytes = 50 << 20

var funcs = template.FuncMap{
	"has":    func(list []string, v string) bool { return slices.Contains(list, v) },
	"indent": func(depth int) string { return strconv.Itoa(depth*2) + "rem" },
}

var pageTmpl = template.Must(template.New("page").Funcs(funcs).ParseFS(templateFS, "templates/page.html"))

// pageData is everything the page template needs.
type pageData struct {
	Error     string
	Upload    *page.UploadResult
	Cards     []*card.Card
	CardsJSON string
	Selected  int
	View      *form.View
}

// Handler renders the editor page and handles its form posts.
type Handler struct {
	ctrl   *page.Controller
	logger *slog.Logger
}

// NewRouter returns the UI routes. The session middleware is shared with
// the JSON API so both see the same session cookie.
func NewRouter(ctrl *page.Controller, logger *slog.Logger, cfg api.RouterConfig) chi.Router {
	h := &Handler{ctrl: ctrl, logger: logger}

	r := chi.NewRouter()
	r.Use(api.AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(api.SessionMiddleware(ctrl, cfg.CookieName, cfg.SecureCookie))

	r.Get("/", h.Index)
	r.Post("/upload", h.Upload)
	r.Post("/convert", h.Convert)
	r.Post("/cards/{index}", h.Save)
	r.Get("/cards/{index}/download", h.Download)
	return r
}

// Index renders the page for the current session. The card to edit is
// chosen with ?card=, defaulting to the first.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	sel, _ := strconv.Atoi(r.URL.Query().Get("card"))
	h.render(w, api.SessionFrom(r.Context()), sel, http.StatusOK, "")
}

// Upload accepts the spreadsheet form.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.render(w, sess, 0, http.StatusBadRequest, "File too large or not a form upload.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.render(w, sess, 0, http.StatusBadRequest, "Choose a spreadsheet to upload.")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.render(w, sess, 0, http.StatusBadRequest, "Failed to read the file.")
		return
	}
	if _, err := h.ctrl.Upload(r.Context(), sess, filepath.Base(header.Filename), data); err != nil {
		h.fail(w, sess, 0, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Convert generates cards for the current upload.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFrom(r.Context())
	if _, err := h.ctrl.Convert(r.Context(), sess, nil); err != nil {
		h.fail(w, sess, 0, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Save applies the editor form to one card.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFrom(r.Context())
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.render(w, sess, 0, http.StatusBadRequest, "Unknown card.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, sess, i, http.StatusBadRequest, "Invalid form submission.")
		return
	}
	if _, _, err := h.ctrl.ApplyForm(r.Context(), sess, i, r.PostForm); err != nil {
		h.fail(w, sess, i, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/?card=%d", i), http.StatusSeeOther)
}

// Download serves one card as a JSON attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFrom(r.Context())
	i, _ := strconv.Atoi(chi.URLParam(r, "index"))
	c, err := h.ctrl.Card(sess, i)
	if err != nil {
		h.fail(w, sess, 0, err)
		return
	}
	data, err := export.Encode(c)
	if err != nil {
		h.fail(w, sess, i, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, export.FileName(c, i)))
	_, _ = w.Write(data)
}

// fail renders the page with a message for err.
func (h *Handler) fail(w http.ResponseWriter, sess *session.Session, sel int, err error) {
	status, msg := http.StatusInternalServerError, "Something went wrong."
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		status, msg = http.StatusNotFound, "Unknown card."
	case errors.Is(err, apperr.ErrNoUpload):
		status, msg = http.StatusConflict, "Upload a spreadsheet first."
	case errors.Is(err, apperr.ErrNotConverted):
		status, msg = http.StatusConflict, "Convert the upload first."
	case errors.Is(err, apperr.ErrStaleUpload):
		status, msg = http.StatusConflict, "The spreadsheet was replaced while converting. Convert again."
	default:
		h.logger.Error("web request failed", slog.String("error", err.Error()))
		msg = "Conversion failed: " + err.Error()
		status = http.StatusBadGateway
	}
	h.render(w, sess, sel, status, msg)
}

func (h *Handler) render(w http.ResponseWriter, sess *session.Session, sel, status int, msg string) {
	data := pageData{Error: msg}
	if res, err := h.ctrl.Current(sess); err == nil {
		res.Preview, _ = h.ctrl.Preview(sess, page.PreviewRows)
		data.Upload = res
	}
	if cards, err := h.ctrl.Cards(sess); err == nil && len(cards) > 0 {
		if sel < 0 || sel >= len(cards) {
			sel = 0
		}
		raw, _ := jsonenc.MarshalIndent(cards, "", "  ")
		data.Cards = cards
		data.CardsJSON = string(raw)
		data.Selected = sel
		if v, err := h.ctrl.View(sess, sel); err == nil {
			v.Warnings = append(v.Warnings, sess.Warnings...)
			data.View = &v
		}
	}

	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "page", data); err != nil {
		h.logger.Error("render page failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
