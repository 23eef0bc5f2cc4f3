package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"sac/internal/datasource"
	"sac/internal/logger"
	"sac/internal/matcher"
	sentryutil "sac/internal/sentry"
	"sac/internal/session"
)

// LoginHandler serves GET /api/auth/login: it starts a new session holding
// a fresh OAuth state and sends the browser to Office 365. Any previous
// session of the browser is dropped.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	old, err := a.Sessions.Load(r)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "login", "phase": "session"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	s := a.Sessions.Rotate(r.Context(), old)
	s.OAuthState = uuid.NewString()
	if err := a.Sessions.Save(r.Context(), w, s); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "login", "phase": "save"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	http.Redirect(w, r, a.Auth.AuthCodeURL(s.OAuthState), http.StatusFound)
}

// RedirectHandler serves GET /api/auth/redirect. It completes the code
// flow, reads the Graph profile and binds the directory identity in a
// session with a new id.
func (a *API) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx := r.Context()
	s, err := a.Sessions.Load(r)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "redirect", "phase": "session"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		logger.Warn("auth: provider returned an error", map[string]interface{}{"error": e, "description": q.Get("error_description")})
		writeError(w, http.StatusUnauthorized, "login cancelled or refused")
		return
	}
	if s.OAuthState == "" || q.Get("state") != s.OAuthState {
		writeError(w, http.StatusBadRequest, "invalid login state")
		return
	}

	tok, err := a.Auth.Exchange(ctx, q.Get("code"))
	if err != nil {
		logger.Warn("auth: code exchange failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusUnauthorized, "login failed")
		return
	}
	profile, err := a.Auth.FetchProfile(ctx, tok)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "redirect", "phase": "graph"})
		writeError(w, http.StatusBadGateway, "cannot fetch profile")
		return
	}

	pending := s
	s = a.Sessions.New()
	s.Profile = profile
	s.RoleLabel = profile.JobTitle
	s.Account = profile.UserPrincipalName
	if s.Account == "" {
		s.Account = profile.Mail
	}

	if err := a.bind(ctx, s); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "redirect", "phase": "directory"})
		writeError(w, http.StatusBadGateway, "directory unavailable, try again later")
		return
	}

	a.Sessions.Discard(ctx, pending)
	if err := a.Sessions.Save(ctx, w, s); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "redirect", "phase": "save"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	target := a.AfterLogin
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// bind resolves the session profile against the roster of its role. An
// unknown role label or no acceptable candidate leaves the session
// unbound; only a directory failure is an error.
func (a *API) bind(ctx context.Context, s *session.Session) error {
	role, err := matcher.ParseRole(s.RoleLabel)
	var ambiguous *matcher.AmbiguousRoleError
	if errors.As(err, &ambiguous) {
		logger.Info("auth: role label not mapped to a directory", map[string]interface{}{"role": s.RoleLabel})
		return nil
	}

	dir, err := a.Directory.LoadDirectory(ctx, role, datasource.Filters{})
	if err != nil {
		return err
	}
	m, ok := matcher.Resolve(s.Profile, role, dir)
	if !ok {
		logger.Info("auth: no directory match", map[string]interface{}{"role": role.String(), "candidates": len(dir)})
		return nil
	}
	logger.Info("auth: identity bound", map[string]interface{}{
		"role": role.String(), "directory_id": m.Identity.ID, "score": m.Score, "signals": m.Signals,
	})
	return s.Bind(m.Identity)
}

// LogoutHandler serves GET /api/auth/logout.
func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s, err := a.Sessions.Load(r)
	if err == nil {
		if err := a.Sessions.Destroy(r.Context(), w, s); err != nil {
			logger.Warn("auth: session delete failed", map[string]interface{}{"error": err.Error()})
		}
	} else {
		a.Sessions.Codec.ClearCookie(w)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
