// Package session keeps the per-browser login state: the Office 365
// profile, its role label and the directory identity bound at login.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"sac/internal/models"
)

var (
	ErrNotFound      = errors.New("session: not found")
	ErrAlreadyBound  = errors.New("session: identity already bound")
	ErrInvalidCookie = errors.New("session: invalid cookie")
)

// Session is what the store persists between requests.
type Session struct {
	ID         string                `json:"id"`
	Account    string                `json:"account,omitempty"`
	Profile    models.SourceProfile  `json:"profile"`
	RoleLabel  string                `json:"role_label,omitempty"`
	Bound      *models.BoundIdentity `json:"bound,omitempty"`
	OAuthState string                `json:"oauth_state,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
}

// Authenticated reports whether the Office 365 login completed.
func (s *Session) Authenticated() bool { return s.Account != "" }

// Bind records the directory identity. It can only be set once.
func (s *Session) Bind(b models.BoundIdentity) error {
	if s.Bound != nil {
		return ErrAlreadyBound
	}
	bound := b
	s.Bound = &bound
	return nil
}

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
