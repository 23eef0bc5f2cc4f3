package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"sac/internal/config"
	"sac/internal/datasource"
	"sac/internal/matcher"
	"sac/internal/models"
	sentryutil "sac/internal/sentry"
)

type resolveRequest struct {
	Profile          models.SourceProfile `json:"profile"`
	Role             string               `json:"role"`
	DepartmentSignal bool                 `json:"department_signal"`
}

type resolveResponse struct {
	Matched bool           `json:"matched"`
	Match   *matcher.Match `json:"match,omitempty"`
}

// AdminResolveHandler serves POST /api/admin/resolve: it runs the login
// matching for an arbitrary profile without touching any session.
// Protected by ADMIN_API_KEY (query param "key" or header "X-Admin-Key").
func (a *API) AdminResolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !checkAdminKey(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	label := req.Role
	if label == "" {
		label = req.Profile.JobTitle
	}
	role, err := matcher.ParseRole(label)
	var ambiguous *matcher.AmbiguousRoleError
	if errors.As(err, &ambiguous) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dir, err := a.Directory.LoadDirectory(r.Context(), role, datasource.Filters{})
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "admin-resolve"})
		writeError(w, http.StatusBadGateway, "directory unavailable")
		return
	}

	var opts []matcher.Option
	if req.DepartmentSignal {
		opts = append(opts, matcher.WithDepartmentSignal(req.Profile.Department))
	}
	m, ok := matcher.Resolve(req.Profile, role, dir, opts...)
	resp := resolveResponse{Matched: ok}
	if ok {
		resp.Match = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkAdminKey accepts the key from the "key" query param or the
// X-Admin-Key header. Without a configured key the admin routes are
// closed unless DEV_MODE is set.
func checkAdminKey(r *http.Request) bool {
	key := config.Cfg.AdminAPIKey
	if key == "" {
		return config.Cfg.DevMode
	}
	given := r.Header.Get("X-Admin-Key")
	if given == "" {
		given = r.URL.Query().Get("key")
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(key)) == 1
}
