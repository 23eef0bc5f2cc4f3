package attendance

import (
	"time"

	"sac/internal/models"
)

// ActiveAt returns the entries whose [Start, End] window contains now, in
// their original order. Both bounds are inclusive.
func ActiveAt(entries []models.ScheduleEntry, now time.Time) []models.ScheduleEntry {
	var active []models.ScheduleEntry
	for _, e := range entries {
		if !now.Before(e.Start) && !now.After(e.End) {
			active = append(active, e)
		}
	}
	return active
}
