package datasource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"sac/internal/matcher"
	"sac/internal/models"
)

// Filters narrows a roster. Empty fields do not filter.
type Filters struct {
	Classe  string // class id
	Matiere string // subject keyword, case insensitive
	Search  string // keyword on nom, prenom or email
}

func rosterPath(role matcher.Role) (string, error) {
	switch role {
	case matcher.RoleStudent:
		return pathElevesAll, nil
	case matcher.RoleTeacher:
		return pathProfesseurs, nil
	case matcher.RoleStaff:
		return pathPersonnels, nil
	}
	return "", fmt.Errorf("datasource: no roster for %v", role)
}

// LoadDirectory fetches the roster backing role and applies f.
func (c *Client) LoadDirectory(ctx context.Context, role matcher.Role, f Filters) ([]models.DirectoryEntry, error) {
	path, err := rosterPath(role)
	if err != nil {
		return nil, err
	}
	data, err := c.fetch(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	contacts := data.Get("contacts")
	if !contacts.IsArray() {
		return nil, fmt.Errorf("datasource: %s returned no contacts", path)
	}

	var out []models.DirectoryEntry
	contacts.ForEach(func(_, ct gjson.Result) bool {
		if keepContact(ct, f) {
			out = append(out, directoryEntry(ct))
		}
		return true
	})
	return out, nil
}

func directoryEntry(ct gjson.Result) models.DirectoryEntry {
	e := models.DirectoryEntry{
		ID:     int(ct.Get("id").Int()),
		Nom:    ct.Get("nom").String(),
		Prenom: ct.Get("prenom").String(),
		Email:  ct.Get("email").String(),
	}
	if cl := ct.Get("classe"); cl.IsObject() && (cl.Get("id").Int() != 0 || cl.Get("libelle").String() != "") {
		e.Classe = &models.ClasseRef{
			ID:      int(cl.Get("id").Int()),
			Code:    cl.Get("code").String(),
			Libelle: cl.Get("libelle").String(),
		}
	}
	ct.Get("classes").ForEach(func(_, cl gjson.Result) bool {
		e.Matiere = cl.Get("matiere").String()
		return e.Matiere == ""
	})
	return e
}

func keepContact(ct gjson.Result, f Filters) bool {
	if f.Classe != "" {
		found := ct.Get("classe.id").String() == f.Classe
		ct.Get("classes").ForEach(func(_, cl gjson.Result) bool {
			if cl.Get("id").String() == f.Classe {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	if f.Matiere != "" {
		kw := strings.ToLower(f.Matiere)
		found := false
		ct.Get("classes").ForEach(func(_, cl gjson.Result) bool {
			if strings.Contains(strings.ToLower(cl.Get("matiere").String()), kw) {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	if f.Search != "" {
		kw := strings.ToLower(f.Search)
		if !containsFold(ct.Get("nom").String(), kw) &&
			!containsFold(ct.Get("prenom").String(), kw) &&
			!containsFold(ct.Get("email").String(), kw) {
			return false
		}
	}
	return true
}

func containsFold(s, lowerKeyword string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerKeyword)
}

// classRef is one class of the NIVEAUX_ALL tree.
type classRef struct {
	ID      int
	Code    string
	Libelle string
}

func (c classRef) id() string { return strconv.Itoa(c.ID) }

// listClasses flattens etablissements[].niveaux[].classes[].
func (c *Client) listClasses(ctx context.Context) ([]classRef, error) {
	data, err := c.fetch(ctx, pathNiveauxAll, nil)
	if err != nil {
		return nil, err
	}
	var out []classRef
	for _, etab := range data.Get("etablissements").Array() {
		for _, niveau := range etab.Get("niveaux").Array() {
			for _, cl := range niveau.Get("classes").Array() {
				out = append(out, classRef{
					ID:      int(cl.Get("id").Int()),
					Code:    cl.Get("code").String(),
					Libelle: cl.Get("libelle").String(),
				})
			}
		}
	}
	return out, nil
}
