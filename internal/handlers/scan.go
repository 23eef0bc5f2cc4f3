package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sac/internal/attendance"
	"sac/internal/logger"
	"sac/internal/middleware"
	"sac/internal/models"
	sentryutil "sac/internal/sentry"
)

// ReasonNotBound is returned when login found no directory identity.
const ReasonNotBound = "no directory identity bound to this account"

type scanRequest struct {
	NFCToken string `json:"nfc_token"`
}

// ScanHandler serves POST /api/scan. The response body is the decision and
// its status code is the decision status.
func (a *API) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s, err := a.Sessions.Load(r)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "scan", "phase": "session"})
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if !s.Authenticated() {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(req.NFCToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "nfc_token is required")
		return
	}
	trackScan()

	if s.Bound == nil {
		d := models.Decision{Status: http.StatusBadRequest, Reason: ReasonNotBound}
		trackDecision(d)
		writeJSON(w, d.Status, d)
		return
	}

	d, err := a.Scanner.ValidateScan(r.Context(), token, a.now(), *s.Bound)
	if err != nil {
		var upstream *attendance.UpstreamUnavailableError
		if errors.As(err, &upstream) {
			trackUpstreamFailure()
			sentryutil.CaptureError(err, map[string]string{"handler": "scan", "op": upstream.Op})
			writeError(w, http.StatusServiceUnavailable, "timetable unavailable, try again")
			return
		}
		sentryutil.CaptureError(err, map[string]string{"handler": "scan"})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	trackDecision(d)
	logger.Info("scan", map[string]interface{}{
		"request_id":   middleware.RequestID(r.Context()),
		"directory_id": s.Bound.ID,
		"role":         s.Bound.Role,
		"room":         token,
		"status":       d.Status,
		"reason":       d.Reason,
	})
	writeJSON(w, d.Status, d)
}
