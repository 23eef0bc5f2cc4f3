package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sac/internal/models"
)

// Policy selects how a tap token is interpreted.
type Policy int

const (
	// PolicyRoomScoped treats the token as the canonical room id and checks
	// that the bound class is scheduled in that room.
	PolicyRoomScoped Policy = iota + 1
	// PolicyClassScoped checks the bound class timetable and resolves the
	// token to a room through RoomLookup.
	PolicyClassScoped
)

func (p Policy) String() string {
	switch p {
	case PolicyRoomScoped:
		return "room"
	case PolicyClassScoped:
		return "class"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "room" or "class".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "room", "salle", "":
		return PolicyRoomScoped, nil
	case "class", "classe":
		return PolicyClassScoped, nil
	}
	return 0, fmt.Errorf("attendance: unknown scan policy %q", s)
}

// Scope is the timetable a schedule lookup is keyed on.
type Scope int

const (
	ScopeClass Scope = iota + 1
	ScopeRoom
)

func (s Scope) String() string {
	if s == ScopeRoom {
		return "room"
	}
	return "class"
}

// ScheduleLookup returns the timetable of one class or room for the day
// containing day.
type ScheduleLookup interface {
	LoadSchedule(ctx context.Context, scope Scope, id string, day time.Time) ([]models.ScheduleEntry, error)
}

// RoomLookup resolves a room label. A nil entry with a nil error means the
// room does not exist.
type RoomLookup interface {
	LookupRoom(ctx context.Context, label string) (*models.RoomEntry, error)
}

// UpstreamUnavailableError wraps a collaborator failure.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("attendance: %s unavailable: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
