// Package session holds per-user working state: the uploaded table and the
// cards generated from it. Sessions are never shared between users.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cardsmith/internal/card"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/sheet"
)

// Upload is the current spreadsheet of a session. Identity is the checksum
// of the uploaded bytes.
type Upload struct {
	Identity   string       `json:"identity"`
	Filename   string       `json:"filename"`
	Table      *sheet.Table `json:"table"`
	UploadedAt time.Time    `json:"uploadedAt"`
}

// Session is one user's working context.
type Session struct {
	ID        string                 `json:"id"`
	Upload    *Upload                `json:"upload,omitempty"`
	Cards     []*card.Card           `json:"cards,omitempty"`
	Discarded [][]rules.Unrecognized `json:"discarded,omitempty"`
	Warnings  []card.Warning         `json:"warnings,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// New returns an empty session with a fresh random ID.
func New() *Session {
	return &Session{ID: uuid.NewString(), UpdatedAt: time.Now().UTC()}
}

// Converted reports whether cards are cached for the current upload.
func (s *Session) Converted() bool {
	return s.Cards != nil
}

// ClearCards drops cached cards and their conversion side data.
func (s *Session) ClearCards() {
	s.Cards = nil
	s.Discarded = nil
	s.Warnings = nil
}

// Clone returns a copy whose cards can be edited without affecting s. The
// uploaded table is shared since it is never modified after parsing.
func (s *Session) Clone() *Session {
	out := *s
	if s.Upload != nil {
		u := *s.Upload
		out.Upload = &u
	}
	if s.Cards != nil {
		out.Cards = make([]*card.Card, len(s.Cards))
		for i, c := range s.Cards {
			out.Cards[i] = c.Clone()
		}
	}
	if s.Discarded != nil {
		out.Discarded = append([][]rules.Unrecognized{}, s.Discarded...)
	}
	if s.Warnings != nil {
		out.Warnings = append([]card.Warning{}, s.Warnings...)
	}
	return &out
}

// Store persists sessions. Get returns apperr.ErrNotFound for unknown or
// expired IDs.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Sweeper is implemented by stores that can drop expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
