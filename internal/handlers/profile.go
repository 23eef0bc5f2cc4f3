package handlers

import (
	"net/http"

	"sac/internal/models"
	sentryutil "sac/internal/sentry"
)

type meResponse struct {
	Account   string                `json:"account"`
	Profile   models.SourceProfile  `json:"profile"`
	Role      string                `json:"role"`
	EDProfile *models.BoundIdentity `json:"ed_profile"`
}

// MeHandler serves GET /api/me: the signed-in profile and its bound
// directory identity (null when none was accepted).
func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	s, err := a.Sessions.Load(r)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "me"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if !s.Authenticated() {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Account:   s.Account,
		Profile:   s.Profile,
		Role:      s.RoleLabel,
		EDProfile: s.Bound,
	})
}
