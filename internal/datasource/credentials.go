package datasource

import (
	"context"
	"errors"
	"sync"

	"sac/internal/logger"
)

// CredentialProvider supplies the X-Token sent with every request.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	// Refresh obtains a new token after the current one was rejected.
	Refresh(ctx context.Context) error
}

// StaticCredentials serves a token taken from the environment. It cannot
// refresh itself: an expired token needs `sacctl token renew`.
type StaticCredentials struct {
	token string
}

func NewStaticCredentials(token string) *StaticCredentials {
	return &StaticCredentials{token: token}
}

func (s *StaticCredentials) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", errors.New("datasource: ECOLEDIRECTE_USER_TOKEN is empty")
	}
	return s.token, nil
}

func (s *StaticCredentials) Refresh(ctx context.Context) error {
	return errors.New("datasource: static token expired, run `sacctl token renew`")
}

// LoginCredentials logs in with identifiant/password on first use and
// again whenever the token is rejected.
type LoginCredentials struct {
	params LoginParams

	mu     sync.Mutex
	token  string
	userID string
}

func NewLoginCredentials(p LoginParams) *LoginCredentials {
	return &LoginCredentials{params: p}
}

func (l *LoginCredentials) Token(ctx context.Context) (string, error) {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if err := l.Refresh(ctx); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token, nil
}

func (l *LoginCredentials) Refresh(ctx context.Context) error {
	res, err := Login(ctx, l.params)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.token, l.userID = res.Token, res.UserID
	l.mu.Unlock()
	logger.Info("datasource: logged in", map[string]interface{}{"user_id": res.UserID, "profile": res.TypeCompte})
	return nil
}

// UserID is the account id of the last successful login, or "".
func (l *LoginCredentials) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}
