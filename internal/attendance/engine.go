package attendance

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sac/internal/matcher"
	"sac/internal/models"
)

// Decision reasons.
const (
	ReasonAccepted           = "ongoing course found"
	ReasonMissingBinding     = "missing class binding"
	ReasonMissingTeacherName = "missing teacher name"
	ReasonUnsupportedRole    = "unsupported role"
	ReasonNoCourseForClass   = "no ongoing course for class"
	ReasonNoCourseInRoom     = "no ongoing course in room"
	ReasonUnknownRoom        = "unknown room"
	ReasonClassNotInRoom     = "class not scheduled in this room"
	ReasonTeacherNotInRoom   = "teacher not scheduled in this room"
)

// Engine validates tap events against the live timetable. It keeps no state
// between calls.
type Engine struct {
	Policy    Policy
	Schedules ScheduleLookup
	Rooms     RoomLookup
}

func NewEngine(policy Policy, schedules ScheduleLookup, rooms RoomLookup) *Engine {
	return &Engine{Policy: policy, Schedules: schedules, Rooms: rooms}
}

// ValidateScan decides whether token, tapped at now by bound, matches a
// running course. Business refusals come back as a Decision; only lookup
// failures are returned as errors.
func (e *Engine) ValidateScan(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error) {
	role, err := matcher.ParseRole(bound.Role)
	if err != nil {
		return deny(http.StatusBadRequest, ReasonUnsupportedRole), nil
	}
	if role == matcher.RoleTeacher {
		return e.validateTeacher(ctx, token, now, bound)
	}
	if !bound.HasClasse() {
		return deny(http.StatusBadRequest, ReasonMissingBinding), nil
	}
	if e.Policy == PolicyClassScoped {
		return e.validateClassScoped(ctx, token, now, bound)
	}
	return e.validateRoomScoped(ctx, token, now, bound)
}

func (e *Engine) validateClassScoped(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error) {
	entries, err := e.Schedules.LoadSchedule(ctx, ScopeClass, strconv.Itoa(bound.ClasseID), now)
	if err != nil {
		return models.Decision{}, &UpstreamUnavailableError{Op: "class schedule", Err: err}
	}
	active := ActiveAt(entries, now)
	if len(active) == 0 {
		return deny(http.StatusForbidden, ReasonNoCourseForClass), nil
	}

	room, err := e.lookupRoom(ctx, token)
	if err != nil {
		return models.Decision{}, err
	}
	if room == nil {
		return deny(http.StatusForbidden, ReasonUnknownRoom), nil
	}

	course := active[0]
	for _, c := range active {
		if roomMatches(c.Salle, room) {
			course = c
			break
		}
	}
	return allow(course.ID, room.ID), nil
}

func (e *Engine) validateRoomScoped(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error) {
	active, err := e.activeInRoom(ctx, token, now)
	if err != nil {
		return models.Decision{}, err
	}
	if len(active) == 0 {
		return deny(http.StatusForbidden, ReasonNoCourseInRoom), nil
	}
	for _, c := range active {
		if c.ClasseID == bound.ClasseID {
			return allow(c.ID, token), nil
		}
	}
	return deny(http.StatusForbidden, ReasonClassNotInRoom), nil
}

// validateTeacher follows the room flow but matches the teacher display
// string against the timetable's prof field.
func (e *Engine) validateTeacher(ctx context.Context, token string, now time.Time, bound models.BoundIdentity) (models.Decision, error) {
	display := TeacherDisplayName(bound)
	if display == "" {
		return deny(http.StatusBadRequest, ReasonMissingTeacherName), nil
	}

	roomID := token
	if e.Policy == PolicyClassScoped {
		room, err := e.lookupRoom(ctx, token)
		if err != nil {
			return models.Decision{}, err
		}
		if room == nil {
			return deny(http.StatusForbidden, ReasonUnknownRoom), nil
		}
		roomID = room.ID
	}

	active, err := e.activeInRoom(ctx, roomID, now)
	if err != nil {
		return models.Decision{}, err
	}
	if len(active) == 0 {
		return deny(http.StatusForbidden, ReasonNoCourseInRoom), nil
	}
	for _, c := range active {
		if strings.Contains(c.Prof, display) {
			return allow(c.ID, roomID), nil
		}
	}
	return deny(http.StatusForbidden, ReasonTeacherNotInRoom), nil
}

func (e *Engine) activeInRoom(ctx context.Context, roomID string, now time.Time) ([]models.ScheduleEntry, error) {
	entries, err := e.Schedules.LoadSchedule(ctx, ScopeRoom, roomID, now)
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "room schedule", Err: err}
	}
	return ActiveAt(entries, now), nil
}

func (e *Engine) lookupRoom(ctx context.Context, token string) (*models.RoomEntry, error) {
	room, err := e.Rooms.LookupRoom(ctx, token)
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "room lookup", Err: err}
	}
	return room, nil
}

// TeacherDisplayName builds the "<Nom> <P>." form the timetable uses for
// teachers, from the directory spelling. The comparison against the
// timetable is case sensitive.
func TeacherDisplayName(b models.BoundIdentity) string {
	nom := strings.TrimSpace(b.DirectoryNom)
	prenom := strings.TrimSpace(b.DirectoryPrenom)
	if nom == "" || prenom == "" {
		return ""
	}
	initial, _ := utf8.DecodeRuneInString(prenom)
	return nom + " " + string(initial) + "."
}

func roomMatches(salle string, room *models.RoomEntry) bool {
	salle = strings.TrimSpace(salle)
	if salle == "" {
		return false
	}
	return strings.EqualFold(salle, room.Libelle) || strings.EqualFold(salle, room.Code) || salle == room.ID
}

func allow(courseID int, roomID string) models.Decision {
	return models.Decision{Status: http.StatusOK, Reason: ReasonAccepted, CourseID: courseID, RoomID: roomID}
}

func deny(status int, reason string) models.Decision {
	return models.Decision{Status: status, Reason: reason}
}
