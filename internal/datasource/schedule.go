package datasource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"sac/internal/attendance"
	"sac/internal/logger"
	"sac/internal/models"
)

// timetableLayout is how EcoleDirecte writes start_date/end_date.
const timetableLayout = "2006-01-02 15:04"

// fanOut bounds concurrent class timetable requests for room schedules.
const fanOut = 8

// LoadSchedule returns the timetable of one class or one room for day.
// A room schedule is assembled from every class timetable, keeping the
// entries held in that room.
func (c *Client) LoadSchedule(ctx context.Context, scope attendance.Scope, id string, day time.Time) ([]models.ScheduleEntry, error) {
	r := SingleDay(day.In(c.loc))
	switch scope {
	case attendance.ScopeClass:
		return c.ClassTimetable(ctx, classRef{ID: atoi(id)}, r)
	case attendance.ScopeRoom:
		return c.RoomTimetable(ctx, id, r)
	}
	return nil, fmt.Errorf("datasource: unsupported schedule scope %v", scope)
}

// ClassTimetable fetches /C/:id/emploidutemps.awp for the range.
func (c *Client) ClassTimetable(ctx context.Context, class classRef, r DateRange) ([]models.ScheduleEntry, error) {
	path := fmt.Sprintf(pathEDT, class.id())
	data, err := c.fetch(ctx, path, map[string]any{
		"dateDebut": r.Start,
		"dateFin":   r.End,
		"avecTrous": false,
	})
	if err != nil {
		return nil, err
	}
	var out []models.ScheduleEntry
	for _, ev := range data.Array() {
		entry, err := c.scheduleEntry(ev, class)
		if err != nil {
			logger.Warn("datasource: skipping timetable entry", map[string]interface{}{
				"classe": class.ID, "error": err.Error(),
			})
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// ClassTimetableByID is ClassTimetable for callers holding only the id.
func (c *Client) ClassTimetableByID(ctx context.Context, classID int, r DateRange) ([]models.ScheduleEntry, error) {
	return c.ClassTimetable(ctx, classRef{ID: classID}, r)
}

// RoomTimetable queries every class concurrently and keeps the entries
// held in room. The whole room label must match; case and runs of spaces
// are ignored, so "10" never selects "Salle 101". Any class failure fails
// the whole lookup so an incomplete room schedule is never reported.
func (c *Client) RoomTimetable(ctx context.Context, room string, r DateRange) ([]models.ScheduleEntry, error) {
	classes, err := c.listClasses(ctx)
	if err != nil {
		return nil, err
	}
	needle := roomKey(room)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		result   []models.ScheduleEntry
		firstErr error
	)
	sem := make(chan struct{}, fanOut)

	for _, cl := range classes {
		wg.Add(1)
		go func(cl classRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entries, err := c.ClassTimetable(ctx, cl, r)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("datasource: timetable of class %d: %w", cl.ID, err)
				}
				return
			}
			for _, e := range entries {
				if needle != "" && roomKey(e.Salle) == needle {
					result = append(result, e)
				}
			}
		}(cl)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Start.Equal(result[j].Start) {
			return result[i].Start.Before(result[j].Start)
		}
		return result[i].ClasseID < result[j].ClasseID
	})
	logger.Debug("datasource: room timetable", map[string]interface{}{
		"room": room, "classes": len(classes), "entries": len(result),
	})
	return result, nil
}

// roomKey folds a room label for comparison.
func roomKey(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

func (c *Client) scheduleEntry(ev gjson.Result, class classRef) (models.ScheduleEntry, error) {
	start, err := time.ParseInLocation(timetableLayout, ev.Get("start_date").String(), c.loc)
	if err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.ParseInLocation(timetableLayout, ev.Get("end_date").String(), c.loc)
	if err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("end_date: %w", err)
	}
	e := models.ScheduleEntry{
		ID:       int(ev.Get("id").Int()),
		Start:    start,
		End:      end,
		Salle:    ev.Get("salle").String(),
		ClasseID: int(ev.Get("classeId").Int()),
		Classe:   ev.Get("classe").String(),
		Prof:     ev.Get("prof").String(),
		Matiere:  ev.Get("matiere").String(),
	}
	if e.ClasseID == 0 {
		e.ClasseID = class.ID
	}
	if e.Classe == "" {
		e.Classe = class.Libelle
	}
	return e, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
