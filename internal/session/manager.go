package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sac/internal/logger"
)

// Manager ties the cookie codec to a store.
type Manager struct {
	Store Store
	Codec *Codec
	TTL   time.Duration
}

func NewManager(store Store, secret string, ttl time.Duration, secureCookie bool) *Manager {
	return &Manager{Store: store, Codec: NewCodec(secret, ttl, secureCookie), TTL: ttl}
}

// Load returns the request's session, or a fresh unsaved one when the
// cookie is absent, invalid or points to an expired session.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	id, err := m.Codec.ID(r)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("session: rejected cookie", map[string]interface{}{"error": err.Error()})
		}
		return newSession(), nil
	}
	s, err := m.Store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return newSession(), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// New returns a fresh unsaved session with its own id.
func (m *Manager) New() *Session { return newSession() }

// Rotate replaces old with a fresh session carrying a new id. The old
// record is deleted from the store; nothing is copied across.
func (m *Manager) Rotate(ctx context.Context, old *Session) *Session {
	m.Discard(ctx, old)
	return newSession()
}

// Discard deletes s from the store without touching the cookie.
func (m *Manager) Discard(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	if err := m.Store.Delete(ctx, s.ID); err != nil {
		logger.Warn("session: discard failed", map[string]interface{}{"error": err.Error()})
	}
}

// Save persists s and (re)issues its cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.Store.Save(ctx, s, m.TTL); err != nil {
		return err
	}
	return m.Codec.SetCookie(w, s.ID)
}

// Destroy deletes the session and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	m.Codec.ClearCookie(w)
	if s == nil {
		return nil
	}
	return m.Store.Delete(ctx, s.ID)
}
