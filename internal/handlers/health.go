package handlers

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"sac/internal/models"
)

var startTime = time.Now()

// scan counters since process start
var stats struct {
	scans    int64
	accepted int64
	denied   int64
	upstream int64
}

func trackScan() { atomic.AddInt64(&stats.scans, 1) }

func trackUpstreamFailure() { atomic.AddInt64(&stats.upstream, 1) }

func trackDecision(d models.Decision) {
	if d.Allowed() {
		atomic.AddInt64(&stats.accepted, 1)
		return
	}
	atomic.AddInt64(&stats.denied, 1)
}

// HealthHandler serves GET /api/health.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(startTime)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"scans": map[string]int64{
			"total":                atomic.LoadInt64(&stats.scans),
			"accepted":             atomic.LoadInt64(&stats.accepted),
			"denied":               atomic.LoadInt64(&stats.denied),
			"upstream_unavailable": atomic.LoadInt64(&stats.upstream),
		},
	})
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
