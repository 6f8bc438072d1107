// Package page coordinates one user's workflow: upload a sheet, convert its
// rows into cards, then edit and export the cards. All state lives in the
// session passed to each call.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/cardsmith/internal/apperr"
	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/checksum"
	"github.com/starford/cardsmith/internal/convert"
	"github.com/starford/cardsmith/internal/form"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/session"
	"github.com/starford/cardsmith/internal/sheet"
	"github.com/starford/cardsmith/internal/sse"
	"github.com/starford/cardsmith/internal/vocab"
)

// PreviewRows is the number of rows shown after an upload.
const PreviewRows = 5

// RowConverter turns one row into a card.
type RowConverter interface {
	Convert(ctx context.Context, row convert.Row) (convert.Result, error)
}

// Publisher receives progress and change events. *sse.Broker implements it.
type Publisher interface {
	Publish(sse.Event)
	PublishProgress(topic string, done, total int)
}

// ProgressFunc is called after each converted row.
type ProgressFunc func(done, total int)

// Controller implements the page operations on top of a session store.
type Controller struct {
	store  session.Store
	conv   RowConverter
	vocab  *vocab.Store
	events Publisher
	logger *slog.Logger

	group singleflight.Group
	locks sync.Map // session ID -> *sync.Mutex
}

// New creates a controller. events may be nil.
func New(store session.Store, conv RowConverter, vs *vocab.Store, events Publisher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, conv: conv, vocab: vs, events: events, logger: logger}
}

// Catalog returns the active vocabulary.
func (c *Controller) Catalog() *vocab.Catalog {
	return c.vocab.Current()
}

func (c *Controller) lock(id string) func() {
	m, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// update applies fn to the stored copy of sess under the session lock and
// saves it, so concurrent requests holding older copies do not overwrite
// each other. sess is refreshed to the saved state.
func (c *Controller) update(ctx context.Context, sess *session.Session, fn func(*session.Session) error) error {
	defer c.lock(sess.ID)()
	fresh, err := c.store.Get(ctx, sess.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		fresh = sess
	case err != nil:
		return err
	}
	if err := fn(fresh); err != nil {
		return err
	}
	if err := c.store.Save(ctx, fresh); err != nil {
		return err
	}
	*sess = *fresh
	return nil
}

func (c *Controller) publish(sess *session.Session, typ string, data any) {
	if c.events != nil {
		c.events.Publish(sse.Event{Topic: sess.ID, Type: typ, Data: data})
	}
}

// Open loads the session with the given ID, or creates and stores a new one
// when id is empty, unknown or expired.
func (c *Controller) Open(ctx context.Context, id string) (*session.Session, bool, error) {
	if id != "" {
		sess, err := c.store.Get(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, false, err
		}
	}
	sess := session.New()
	if err := c.store.Save(ctx, sess); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// UploadResult describes the outcome of Upload.
type UploadResult struct {
	Identity string        `json:"identity"`
	Filename string        `json:"filename"`
	Rows     int           `json:"rows"`
	Columns  []string      `json:"columns"`
	Preview  []convert.Row `json:"preview"`
	Cached   bool          `json:"cached"`
}

// Upload records a spreadsheet. Bytes identical to the current upload reuse
// the cached table and cards; a different file is parsed and clears the
// cached cards.
func (c *Controller) Upload(ctx context.Context, sess *session.Session, filename string, data []byte) (*UploadResult, error) {
	identity := checksum.Sum(data)
	var (
		cached bool
		table  *sheet.Table
	)
	err := c.update(ctx, sess, func(s *session.Session) error {
		cached = s.Upload != nil && s.Upload.Identity == identity
		if cached {
			return nil
		}
		var err error
		table, err = sheet.Read(filename, data)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		s.Upload = &session.Upload{
			Identity:   identity,
			Filename:   filename,
			Table:      table,
			UploadedAt: time.Now().UTC(),
		}
		s.ClearCards()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !cached {
		c.logger.Info("page: upload replaced",
			slog.String("session", sess.ID),
			slog.String("file", filename),
			slog.Int("rows", table.Len()),
		)
		c.publish(sess, sse.TypeUploadReplaced, map[string]any{"filename": filename, "rows": table.Len()})
	}
	return uploadResult(sess.Upload, cached), nil
}

func uploadResult(u *session.Upload, cached bool) *UploadResult {
	return &UploadResult{
		Identity: u.Identity,
		Filename: u.Filename,
		Rows:     u.Table.Len(),
		Columns:  u.Table.Columns,
		Preview:  u.Table.Preview(PreviewRows),
		Cached:   cached,
	}
}

// Current describes the current upload.
func (c *Controller) Current(sess *session.Session) (*UploadResult, error) {
	if sess.Upload == nil {
		return nil, apperr.ErrNoUpload
	}
	return uploadResult(sess.Upload, true), nil
}

// Preview returns the first n rows of the current upload.
func (c *Controller) Preview(sess *session.Session, n int) ([]convert.Row, error) {
	if sess.Upload == nil {
		return nil, apperr.ErrNoUpload
	}
	return sess.Upload.Table.Preview(n), nil
}

type conversion struct {
	cards     []*card.Card
	discarded [][]rules.Unrecognized
}

// Convert returns the session's cards, converting every row first when
// none are cached. Rows are converted in order, one call each; the first
// failure aborts the run and nothing is cached. Concurrent calls for the
// same session and upload share one run.
func (c *Controller) Convert(ctx context.Context, sess *session.Session, progress ProgressFunc) ([]*card.Card, error) {
	if sess.Upload == nil {
		return nil, apperr.ErrNoUpload
	}
	if sess.Converted() {
		return cloneCards(sess.Cards), nil
	}

	key := sess.ID + ":" + sess.Upload.Identity
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.convertAll(ctx, sess, progress)
	})
	if err != nil {
		return nil, err
	}
	conv := v.(*conversion)
	if shared {
		sess.Cards = cloneCards(conv.cards)
		sess.Discarded = conv.discarded
	}
	return cloneCards(conv.cards), nil
}

func (c *Controller) convertAll(ctx context.Context, sess *session.Session, progress ProgressFunc) (*conversion, error) {
	identity := sess.Upload.Identity
	rows := sess.Upload.Table.Rows
	total := len(rows)
	out := &conversion{
		cards:     make([]*card.Card, 0, total),
		discarded: make([][]rules.Unrecognized, 0, total),
	}
	start := time.Now()
	c.logger.Info("page: converting", slog.String("session", sess.ID), slog.Int("rows", total))

	for i, row := range rows {
		res, err := c.conv.Convert(ctx, row)
		if err != nil {
			c.logger.Error("page: conversion aborted",
				slog.String("session", sess.ID),
				slog.Int("row", i+1),
				slog.String("error", err.Error()),
			)
			c.publish(sess, sse.TypeConvertFailed, map[string]any{"row": i + 1, "error": err.Error()})
			return nil, fmt.Errorf("page: row %d: %w", i+1, err)
		}
		out.cards = append(out.cards, res.Card)
		out.discarded = append(out.discarded, res.Discarded)
		if progress != nil {
			progress(i+1, total)
		}
		if c.events != nil {
			c.events.PublishProgress(sess.ID, i+1, total)
		}
	}

	err := c.update(ctx, sess, func(s *session.Session) error {
		if s.Upload == nil || s.Upload.Identity != identity {
			return apperr.ErrStaleUpload
		}
		s.Cards = cloneCards(out.cards)
		s.Discarded = out.discarded
		s.Warnings = nil
		return nil
	})
	if errors.Is(err, apperr.ErrStaleUpload) {
		c.logger.Warn("page: upload replaced during conversion, result dropped", slog.String("session", sess.ID))
		c.publish(sess, sse.TypeConvertFailed, map[string]any{"error": err.Error()})
	}
	if err != nil {
		return nil, err
	}
	c.logger.Info("page: converted",
		slog.String("session", sess.ID),
		slog.Int("cards", len(out.cards)),
		slog.Duration("took", time.Since(start)),
	)
	c.publish(sess, sse.TypeConvertDone, map[string]int{"cards": len(out.cards)})
	return out, nil
}

// Cards returns copies of the cached cards.
func (c *Controller) Cards(sess *session.Session) ([]*card.Card, error) {
	if !sess.Converted() {
		return nil, notConverted(sess)
	}
	return cloneCards(sess.Cards), nil
}

// Card returns a copy of card i.
func (c *Controller) Card(sess *session.Session, i int) (*card.Card, error) {
	cd, err := cardAt(sess, i)
	if err != nil {
		return nil, err
	}
	return cd.Clone(), nil
}

// Discarded returns the rule strings dropped while converting card i.
func (c *Controller) Discarded(sess *session.Session, i int) ([]rules.Unrecognized, error) {
	if _, err := cardAt(sess, i); err != nil {
		return nil, err
	}
	if i < len(sess.Discarded) {
		return sess.Discarded[i], nil
	}
	return nil, nil
}

// View renders the editor for card i.
func (c *Controller) View(sess *session.Session, i int) (form.View, error) {
	cd, err := cardAt(sess, i)
	if err != nil {
		return form.View{}, err
	}
	return form.Render(c.Catalog(), cd), nil
}

// ApplyForm writes submitted form input into card i.
func (c *Controller) ApplyForm(ctx context.Context, sess *session.Session, i int, input url.Values) (*card.Card, []card.Warning, error) {
	var (
		updated  *card.Card
		warnings []card.Warning
	)
	err := c.update(ctx, sess, func(s *session.Session) error {
		cd, err := cardAt(s, i)
		if err != nil {
			return err
		}
		updated, warnings, err = form.Apply(c.Catalog(), cd, input)
		if err != nil {
			return err
		}
		s.Cards[i] = updated
		s.Warnings = warnings
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	c.cardUpdated(sess, i)
	return updated.Clone(), warnings, nil
}

// ApplyRuleEvent runs one rule editor event against card i. A card without
// rules starts from one empty AND group.
func (c *Controller) ApplyRuleEvent(ctx context.Context, sess *session.Session, i int, ev rules.Event) (*card.Card, error) {
	var updated *card.Card
	err := c.update(ctx, sess, func(s *session.Session) error {
		cd, err := cardAt(s, i)
		if err != nil {
			return err
		}
		tree := cd.EligibilityRules
		if tree == nil {
			tree = rules.DefaultTree()
		}
		next, err := c.Catalog().RuleSchema().Reduce(tree, ev)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		updated = cd.Clone()
		updated.EligibilityRules = next
		s.Cards[i] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cardUpdated(sess, i)
	return updated.Clone(), nil
}

// ReplaceCard stores c as card i. A non-empty ifMatch must equal the
// current card's ETag.
func (c *Controller) ReplaceCard(ctx context.Context, sess *session.Session, i int, cd *card.Card, ifMatch string) (*card.Card, error) {
	err := c.update(ctx, sess, func(s *session.Session) error {
		current, err := cardAt(s, i)
		if err != nil {
			return err
		}
		if ifMatch != "" && ifMatch != ETag(current) {
			return apperr.ErrConflict
		}
		s.Cards[i] = cd.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cardUpdated(sess, i)
	return cd.Clone(), nil
}

// Validate lints card i against the active vocabulary.
func (c *Controller) Validate(sess *session.Session, i int) ([]card.Issue, error) {
	cd, err := cardAt(sess, i)
	if err != nil {
		return nil, err
	}
	return card.Lint(cd, c.Catalog()), nil
}

func (c *Controller) cardUpdated(sess *session.Session, i int) {
	c.publish(sess, sse.TypeCardUpdated, map[string]any{"index": i, "etag": ETag(sess.Cards[i])})
}

// ETag identifies a card revision.
func ETag(cd *card.Card) string {
	return checksum.JSON(cd)
}

func cardAt(sess *session.Session, i int) (*card.Card, error) {
	if !sess.Converted() {
		return nil, notConverted(sess)
	}
	if i < 0 || i >= len(sess.Cards) {
		return nil, fmt.Errorf("card %d: %w", i, apperr.ErrNotFound)
	}
	return sess.Cards[i], nil
}

func notConverted(sess *session.Session) error {
	if sess.Upload == nil {
		return apperr.ErrNoUpload
	}
	return apperr.ErrNotConverted
}

func cloneCards(in []*card.Card) []*card.Card {
	out := make([]*card.Card, len(in))
	for i, cd := range in {
		out[i] = cd.Clone()
	}
	return out
}
