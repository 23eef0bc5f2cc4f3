package handlers

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"sac/internal/datasource"
	"sac/internal/matcher"
	"sac/internal/models"
	"sac/internal/session"
)

// AuthProvider is the Office 365 sign-in flow.
type AuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, tok *oauth2.Token) (models.SourceProfile, error)
}

// DirectoryLoader returns the roster a role is resolved against.
type DirectoryLoader interface {
	LoadDirectory(ctx context.Context, role matcher.Role, f datasource.Filters) ([]models.DirectoryEntry, error)
}

// ScanValidator decides a tap.
type ScanValidator interface {
	ValidateScan(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error)
}

// API holds the collaborators of the HTTP handlers.
type API struct {
	Sessions  *session.Manager
	Auth      AuthProvider
	Directory DirectoryLoader
	Scanner   ScanValidator
	// AfterLogin is where the browser lands once signed in.
	AfterLogin string
	Now        func() time.Time
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
