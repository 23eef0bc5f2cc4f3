package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"sac/internal/matcher"
	"sac/internal/models"
)

// Columns of the Office 365 admin center user export.
const (
	colFirstName   = "First name"
	colLastName    = "Last name"
	colUPN         = "User principal name"
	colDepartment  = "Department"
	colTitle       = "Title"
	colDisplayName = "Display name"
)

var matchOpts struct {
	office    string
	directory string
	role      string
	out       string
	unmatched string
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Reconcile an Office 365 user export with an EcoleDirecte directory dump",
	Long: `Resolve every row of an Office 365 CSV export against a directory JSON
file with the same rules as the login flow, plus the department signal.

The directory may be a "data ELEVES_ALL" dump or a flat array of
{id, nom, prenom, email, classeCode, classeLibelle} records.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := matcher.ParseRole(matchOpts.role)
		if err != nil {
			return err
		}
		rows, err := readOfficeCSV(matchOpts.office)
		if err != nil {
			return err
		}
		dir, err := readDirectory(matchOpts.directory)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "loaded %d office users and %d directory entries\n", len(rows), len(dir))

		rep := reconcile(rows, dir, role)

		if err := writeJSON(cmd, matchOpts.out, rep.Results); err != nil {
			return err
		}
		for _, m := range rep.Mismatches {
			fmt.Fprintf(out, "%s (ED_id %d):\n", m.Name, m.ID)
			for _, d := range m.Diffs {
				fmt.Fprintf(out, "   - %s\n", d)
			}
		}
		fmt.Fprintf(out, "matched: %d, mismatched: %d, unmatched: %d\n",
			rep.Matched, len(rep.Mismatches), len(rep.Unmatched))

		if len(rep.Unmatched) > 0 && matchOpts.unmatched != "" {
			if err := writeJSON(cmd, matchOpts.unmatched, rep.Unmatched); err != nil {
				return err
			}
		}
		for _, u := range rep.Unmatched {
			fmt.Fprintf(out, "   - %s (%s)\n", u[colDisplayName], u[colUPN])
		}
		return nil
	},
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchOpts.office, "office", "office_users.csv", "Office 365 users CSV export")
	f.StringVar(&matchOpts.directory, "directory", "directory.json", "Directory JSON dump")
	f.StringVar(&matchOpts.role, "role", "eleve", "Role the rows are resolved as")
	f.StringVar(&matchOpts.out, "out", "office_matched.json", "Matched rows output")
	f.StringVar(&matchOpts.unmatched, "unmatched", "unmatched_office.json", "Unmatched students output")
}

// officeRow is one CSV record keyed by header.
type officeRow map[string]string

func (r officeRow) profile() models.SourceProfile {
	return models.SourceProfile{
		UserPrincipalName: r[colUPN],
		DisplayName:       r[colDisplayName],
		GivenName:         r[colFirstName],
		Surname:           r[colLastName],
		JobTitle:          r[colTitle],
		Department:        r[colDepartment],
	}
}

func (r officeRow) name() string {
	if n := r[colDisplayName]; n != "" {
		return n
	}
	return r[colUPN]
}

func readOfficeCSV(path string) ([]officeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseOfficeCSV(f)
}

func parseOfficeCSV(r io.Reader) ([]officeRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("office csv: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	var rows []officeRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("office csv: %w", err)
		}
		row := make(officeRow, len(header))
		for i, v := range rec {
			if i < len(header) {
				row[header[i]] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// directoryRecord accepts both dump layouts.
type directoryRecord struct {
	models.DirectoryEntry
	ClasseCode    string `json:"classeCode"`
	ClasseLibelle string `json:"classeLibelle"`
}

func readDirectory(path string) ([]models.DirectoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseDirectory(data)
}

func parseDirectory(data []byte) ([]models.DirectoryEntry, error) {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	var recs []directoryRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("directory json: %w", err)
	}
	out := make([]models.DirectoryEntry, 0, len(recs))
	for _, r := range recs {
		e := r.DirectoryEntry
		if e.Classe == nil && (r.ClasseCode != "" || r.ClasseLibelle != "") {
			e.Classe = &models.ClasseRef{Code: r.ClasseCode, Libelle: r.ClasseLibelle}
		}
		out = append(out, e)
	}
	return out, nil
}

type mismatch struct {
	ID    int
	Name  string
	Diffs []string
}

type reconcileReport struct {
	Results    []map[string]interface{}
	Matched    int
	Mismatches []mismatch
	Unmatched  []officeRow
}

// reconcile resolves every row then compares matched rows field by field.
// Unmatched rows are reported only for internal student accounts.
func reconcile(rows []officeRow, dir []models.DirectoryEntry, role matcher.Role) reconcileReport {
	var rep reconcileReport
	for _, row := range rows {
		res := make(map[string]interface{}, len(row)+5)
		for k, v := range row {
			res[k] = v
		}

		m, ok := matcher.Resolve(row.profile(), role, dir, matcher.WithDepartmentSignal(row[colDepartment]))
		if !ok {
			res["ED_id"] = -1
			res["match_score"] = m.Score
			rep.Results = append(rep.Results, res)
			if !strings.Contains(row[colUPN], "#EXT#") && matcher.Normalize(row[colTitle]) == "eleve" {
				rep.Unmatched = append(rep.Unmatched, row)
			}
			continue
		}

		id := m.Identity
		res["ED_id"] = id.ID
		res["ED_nom"] = id.DirectoryNom
		res["ED_prenom"] = id.DirectoryPrenom
		res["ED_classeCode"] = id.ClasseCode
		res["match_score"] = m.Score
		rep.Results = append(rep.Results, res)
		rep.Matched++

		var diffs []string
		compare := func(label, a, b string) {
			if matcher.Normalize(a) != matcher.Normalize(b) {
				diffs = append(diffs, fmt.Sprintf("%s: %q != %q", label, a, b))
			}
		}
		compare("Nom", row[colLastName], id.DirectoryNom)
		compare("Prénom", row[colFirstName], id.DirectoryPrenom)
		compare("Classe", row[colDepartment], id.ClasseCode)
		if len(diffs) > 0 {
			rep.Mismatches = append(rep.Mismatches, mismatch{ID: id.ID, Name: row.name(), Diffs: diffs})
		}
	}
	sort.SliceStable(rep.Unmatched, func(i, j int) bool {
		return rep.Unmatched[i][colUPN] < rep.Unmatched[j][colUPN]
	})
	return rep
}
