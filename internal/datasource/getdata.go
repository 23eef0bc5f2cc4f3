package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sac/internal/matcher"
	"sac/internal/models"
)

// Kinds accepted by GetData.
var Kinds = []string{"ELEVES", "ELEVES_ALL", "PROFESSEURS", "PERSONNELS", "EDT", "SALLES", "NIVEAUX_ALL", "ETABLISSEMENTS"}

// Args are the optional filters of a GetData probe.
type Args struct {
	Classe  string
	Salle   string
	Matiere string
	Prof    string
	Search  string
	Date    string
	Now     time.Time
}

// GetData fetches one record kind and applies the filters that make sense
// for it. The result is ready for JSON output.
func (c *Client) GetData(ctx context.Context, kind string, a Args) (any, error) {
	if a.Now.IsZero() {
		a.Now = time.Now().In(c.loc)
	}
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "":
		return nil, errors.New("datasource: no data type given")
	case "ELEVES_ALL":
		return c.LoadDirectory(ctx, matcher.RoleStudent, Filters{Classe: a.Classe, Search: a.Search})
	case "PROFESSEURS":
		return c.LoadDirectory(ctx, matcher.RoleTeacher, Filters{Classe: a.Classe, Matiere: a.Matiere, Search: a.Search})
	case "PERSONNELS":
		return c.LoadDirectory(ctx, matcher.RoleStaff, Filters{Search: a.Search})
	case "ELEVES":
		return c.classRoster(ctx, a)
	case "EDT":
		return c.timetable(ctx, a)
	case "SALLES":
		rooms, err := c.Rooms(ctx)
		if err != nil {
			return nil, err
		}
		return filterRooms(rooms, firstNonEmpty(a.Salle, a.Search)), nil
	case "NIVEAUX_ALL":
		data, err := c.fetch(ctx, pathNiveauxAll, nil)
		if err != nil {
			return nil, err
		}
		if !data.Exists() {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(data.Raw), nil
	case "ETABLISSEMENTS":
		data, err := c.fetch(ctx, pathNiveaux, nil)
		if err != nil {
			return nil, err
		}
		return filterEtablissements(data.Get("etablissements"), a.Search), nil
	}
	return nil, fmt.Errorf("datasource: unknown data type %q (want one of %s)", kind, strings.Join(Kinds, ", "))
}

// classRoster reads /classes/:id/eleves.awp, which carries the class of
// each student even when the global contacts list does not.
func (c *Client) classRoster(ctx context.Context, a Args) ([]models.DirectoryEntry, error) {
	if a.Classe == "" {
		return nil, errors.New("datasource: ELEVES needs --classe")
	}
	data, err := c.fetch(ctx, fmt.Sprintf(pathEleves, a.Classe), nil)
	if err != nil {
		return nil, err
	}
	class := &models.ClasseRef{ID: atoi(a.Classe)}
	var out []models.DirectoryEntry
	data.Get("eleves").ForEach(func(_, el gjson.Result) bool {
		if !keepContact(el, Filters{Search: a.Search}) {
			return true
		}
		e := directoryEntry(el)
		if e.Classe == nil {
			e.Classe = class
		}
		out = append(out, e)
		return true
	})
	return out, nil
}

func (c *Client) timetable(ctx context.Context, a Args) ([]models.ScheduleEntry, error) {
	r, err := ParseDateRange(a.Date, a.Now)
	if err != nil {
		return nil, err
	}
	var entries []models.ScheduleEntry
	switch {
	case a.Classe != "":
		entries, err = c.ClassTimetable(ctx, classRef{ID: atoi(a.Classe)}, r)
	case a.Salle != "":
		entries, err = c.RoomTimetable(ctx, a.Salle, r)
	default:
		return nil, errors.New("datasource: EDT needs --classe or --salle")
	}
	if err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		if a.Prof != "" && !containsFold(e.Prof, strings.ToLower(a.Prof)) {
			continue
		}
		if kw := strings.ToLower(a.Search); kw != "" &&
			!containsFold(e.Matiere, kw) && !containsFold(e.Prof, kw) &&
			!containsFold(e.Salle, kw) && !containsFold(e.Classe, kw) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func filterRooms(rooms []models.RoomEntry, keyword string) []models.RoomEntry {
	if keyword == "" {
		return rooms
	}
	kw := strings.ToLower(keyword)
	var out []models.RoomEntry
	for _, r := range rooms {
		if containsFold(r.Libelle, kw) || containsFold(r.Code, kw) || r.ID == keyword {
			out = append(out, r)
		}
	}
	return out
}

func filterEtablissements(list gjson.Result, keyword string) json.RawMessage {
	if !list.IsArray() {
		return json.RawMessage("[]")
	}
	if keyword == "" {
		return json.RawMessage(list.Raw)
	}
	kw := strings.ToLower(keyword)
	var kept []json.RawMessage
	list.ForEach(func(_, e gjson.Result) bool {
		if containsFold(e.Get("libelle").String(), kw) || containsFold(e.Get("code").String(), kw) {
			kept = append(kept, json.RawMessage(e.Raw))
		}
		return true
	})
	b, _ := json.Marshal(kept)
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
