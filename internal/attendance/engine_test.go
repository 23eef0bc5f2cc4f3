package attendance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sac/internal/models"
)

type fakeSchedules struct {
	byScope map[Scope]map[string][]models.ScheduleEntry
	err     error
	calls   []string
}

func (f *fakeSchedules) LoadSchedule(_ context.Context, scope Scope, id string, _ time.Time) ([]models.ScheduleEntry, error) {
	f.calls = append(f.calls, scope.String()+":"+id)
	if f.err != nil {
		return nil, f.err
	}
	return f.byScope[scope][id], nil
}

type fakeRooms map[string]*models.RoomEntry

func (f fakeRooms) LookupRoom(_ context.Context, label string) (*models.RoomEntry, error) {
	if label == "boom" {
		return nil, errors.New("salles.awp: HTTP 502")
	}
	return f[label], nil
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2025-12-22 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func course101() models.ScheduleEntry {
	return models.ScheduleEntry{
		ID: 9001, Start: at("10:00"), End: at("11:00"), Salle: "101",
		ClasseID: 5, Classe: "2A", Prof: "MARTIN C.", Matiere: "MATHEMATIQUES",
	}
}

func newFixture(policy Policy) (*Engine, *fakeSchedules) {
	entries := []models.ScheduleEntry{course101()}
	sched := &fakeSchedules{byScope: map[Scope]map[string][]models.ScheduleEntry{
		ScopeClass: {"5": entries},
		ScopeRoom:  {"101": entries},
	}}
	rooms := fakeRooms{"SALLE 101": {ID: "101", Code: "101", Libelle: "SALLE 101"}}
	return NewEngine(policy, sched, rooms), sched
}

func student() models.BoundIdentity {
	return models.BoundIdentity{ID: 2, Role: "eleve", Nom: "dupont", Prenom: "jean", DirectoryNom: "DUPONT", DirectoryPrenom: "Jean", ClasseID: 5}
}

func TestActiveAt(t *testing.T) {
	entries := []models.ScheduleEntry{
		{ID: 1, Start: at("08:00"), End: at("09:00")},
		{ID: 2, Start: at("10:00"), End: at("11:00")},
		{ID: 3, Start: at("10:30"), End: at("12:00")},
	}
	cases := map[string][]int{
		"07:59": nil,
		"08:00": {1},
		"09:00": {1},
		"10:30": {2, 3},
		"11:00": {2, 3},
		"12:01": nil,
	}
	for now, want := range cases {
		var got []int
		for _, e := range ActiveAt(entries, at(now)) {
			got = append(got, e.ID)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ActiveAt(%s) (-want +got):\n%s", now, diff)
		}
	}
}

func TestActiveAt_AbsoluteInstants(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	start := time.Date(2025, 12, 22, 10, 0, 0, 0, paris)
	entry := models.ScheduleEntry{Start: start, End: start.Add(time.Hour)}
	// 09:30 UTC is 10:30 in Paris in winter.
	now := time.Date(2025, 12, 22, 9, 30, 0, 0, time.UTC)
	if len(ActiveAt([]models.ScheduleEntry{entry}, now)) != 1 {
		t.Error("instants in different zones must compare on the absolute timeline")
	}
}

func TestValidateScan_ClassScopedAccepted(t *testing.T) {
	e, _ := newFixture(PolicyClassScoped)
	d, err := e.ValidateScan(context.Background(), "SALLE 101", at("10:30"), student())
	if err != nil {
		t.Fatal(err)
	}
	want := models.Decision{Status: http.StatusOK, Reason: ReasonAccepted, CourseID: 9001, RoomID: "101"}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("decision (-want +got):\n%s", diff)
	}
}

func TestValidateScan_ClassScopedAfterCourse(t *testing.T) {
	e, _ := newFixture(PolicyClassScoped)
	d, err := e.ValidateScan(context.Background(), "SALLE 101", at("11:30"), student())
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != http.StatusForbidden || d.Reason != ReasonNoCourseForClass {
		t.Errorf("got %+v", d)
	}
}

func TestValidateScan_ClassScopedMissingBinding(t *testing.T) {
	e, sched := newFixture(PolicyClassScoped)
	b := student()
	b.ClasseID = 0
	d, err := e.ValidateScan(context.Background(), "SALLE 101", at("10:30"), b)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != http.StatusBadRequest || d.Reason != ReasonMissingBinding {
		t.Errorf("got %+v", d)
	}
	if len(sched.calls) != 0 {
		t.Errorf("no lookup expected without a class binding, got %v", sched.calls)
	}
}

func TestValidateScan_ClassScopedUnknownRoom(t *testing.T) {
	e, _ := newFixture(PolicyClassScoped)
	d, err := e.ValidateScan(context.Background(), "SALLE 999", at("10:30"), student())
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != http.StatusForbidden || d.Reason != ReasonUnknownRoom {
		t.Errorf("got %+v", d)
	}
}

func TestValidateScan_RoomScoped(t *testing.T) {
	e, sched := newFixture(PolicyRoomScoped)

	d, err := e.ValidateScan(context.Background(), "101", at("10:30"), student())
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed() || d.RoomID != "101" || d.CourseID != 9001 {
		t.Errorf("got %+v", d)
	}
	if diff := cmp.Diff([]string{"room:101"}, sched.calls); diff != "" {
		t.Errorf("lookups (-want +got):\n%s", diff)
	}

	d, _ = e.ValidateScan(context.Background(), "101", at("12:00"), student())
	if d.Status != http.StatusForbidden || d.Reason != ReasonNoCourseInRoom {
		t.Errorf("after course: got %+v", d)
	}

	other := student()
	other.ClasseID = 6
	d, _ = e.ValidateScan(context.Background(), "101", at("10:30"), other)
	if d.Status != http.StatusForbidden || d.Reason != ReasonClassNotInRoom {
		t.Errorf("other class: got %+v", d)
	}
}

func TestValidateScan_EmptyScheduleAnyPolicy(t *testing.T) {
	for _, p := range []Policy{PolicyRoomScoped, PolicyClassScoped} {
		e := NewEngine(p, &fakeSchedules{}, fakeRooms{"101": {ID: "101"}})
		d, err := e.ValidateScan(context.Background(), "101", at("10:30"), student())
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if d.Status != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", p, d.Status)
		}
	}
}

func TestValidateScan_Teacher(t *testing.T) {
	teacher := models.BoundIdentity{ID: 77, Role: "professeur", Nom: "martin", Prenom: "claire", DirectoryNom: "MARTIN", DirectoryPrenom: "Claire"}

	e, _ := newFixture(PolicyRoomScoped)
	d, err := e.ValidateScan(context.Background(), "101", at("10:15"), teacher)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed() || d.CourseID != 9001 {
		t.Errorf("room policy: got %+v", d)
	}

	e, _ = newFixture(PolicyClassScoped)
	d, _ = e.ValidateScan(context.Background(), "SALLE 101", at("10:15"), teacher)
	if !d.Allowed() || d.RoomID != "101" {
		t.Errorf("class policy: got %+v", d)
	}

	stranger := teacher
	stranger.DirectoryNom = "Martin" // case differs from the timetable
	d, _ = e.ValidateScan(context.Background(), "SALLE 101", at("10:15"), stranger)
	if d.Status != http.StatusForbidden || d.Reason != ReasonTeacherNotInRoom {
		t.Errorf("case mismatch: got %+v", d)
	}
}

func TestValidateScan_UpstreamFailure(t *testing.T) {
	boom := errors.New("connection reset")
	e := NewEngine(PolicyRoomScoped, &fakeSchedules{err: boom}, fakeRooms{})

	_, err := e.ValidateScan(context.Background(), "101", at("10:30"), student())
	var upstream *UpstreamUnavailableError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamUnavailableError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("cause should be preserved")
	}

	e, _ = newFixture(PolicyClassScoped)
	if _, err := e.ValidateScan(context.Background(), "boom", at("10:30"), student()); !errors.As(err, &upstream) {
		t.Fatalf("room lookup failure: got %v", err)
	}
}

func TestValidateScan_UnsupportedRole(t *testing.T) {
	e, _ := newFixture(PolicyRoomScoped)
	b := student()
	b.Role = "visiteur"
	d, err := e.ValidateScan(context.Background(), "101", at("10:30"), b)
	if err != nil || d.Status != http.StatusBadRequest {
		t.Errorf("got %+v, %v", d, err)
	}
}

func TestTeacherDisplayName(t *testing.T) {
	b := models.BoundIdentity{DirectoryNom: " DUPONT ", DirectoryPrenom: "Élise"}
	if got := TeacherDisplayName(b); got != "DUPONT É." {
		t.Errorf("got %q", got)
	}
	if TeacherDisplayName(models.BoundIdentity{DirectoryNom: "X"}) != "" {
		t.Error("missing prenom should yield empty display name")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, _ := ParsePolicy("CLASS"); p != PolicyClassScoped {
		t.Errorf("CLASS -> %v", p)
	}
	if p, _ := ParsePolicy(""); p != PolicyRoomScoped {
		t.Errorf("default -> %v", p)
	}
	if _, err := ParsePolicy("hallway"); err == nil {
		t.Error("expected error")
	}
}
