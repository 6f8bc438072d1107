package session

import (
	"context"
	"sync"
	"time"

	"github.com/starford/cardsmith/internal/apperr"
)

// Memory keeps sessions in process memory. Sessions idle for longer than
// ttl are treated as absent; a zero ttl keeps them forever.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, sessions: make(map[string]*Session), now: time.Now}
}

func (m *Memory) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

// Get returns a copy of the stored session.
func (m *Memory) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if m.expired(s) {
		delete(m.sessions, id)
		return nil, apperr.ErrNotFound
	}
	return s.Clone(), nil
}

// Save stores a copy of s and stamps its UpdatedAt.
func (m *Memory) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now().UTC()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Delete removes a session.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
