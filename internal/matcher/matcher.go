package matcher

import (
	"strings"

	"sac/internal/models"
)

// MatchThreshold is the minimum total score for a candidate to be accepted.
const MatchThreshold = 3

// Signal weights.
const (
	emailWeight      = 3
	nomWeight        = 2
	prenomWeight     = 2
	departmentWeight = 1
)

// Match is an accepted directory binding.
type Match struct {
	Score    int                  `json:"match_score"`
	Signals  []string             `json:"signals"`
	Identity models.BoundIdentity `json:"identity"`
}

type options struct {
	department string
}

// Option toggles an additive scoring rule.
type Option func(*options)

// WithDepartmentSignal adds +1 when the profile department contains the
// candidate's class code (or label). Empty departments never score.
func WithDepartmentSignal(department string) Option {
	return func(o *options) {
		o.department = Normalize(department)
	}
}

// sourceIdentity is the normalized view of a source profile.
type sourceIdentity struct {
	email  string
	nom    string
	prenom string
}

func deriveIdentity(p models.SourceProfile) sourceIdentity {
	email := p.Mail
	if email == "" {
		email = p.UserPrincipalName
	}
	parts := strings.Fields(Normalize(p.DisplayName))

	prenom := Normalize(p.GivenName)
	if prenom == "" && len(parts) > 0 {
		prenom = parts[0]
	}
	nom := Normalize(p.Surname)
	if nom == "" && len(parts) > 1 {
		nom = strings.Join(parts[1:], " ")
	}
	// Single-field profiles carry the full name in one place.
	if prenom != "" && nom == "" {
		nom = prenom
	}
	return sourceIdentity{email: Normalize(email), nom: nom, prenom: prenom}
}

func score(src sourceIdentity, ed models.DirectoryEntry, o options) (int, []string) {
	total := 0
	var signals []string

	edEmail := Normalize(ed.Email)
	if src.email != "" && edEmail != "" && strings.Contains(src.email, edEmail) {
		total += emailWeight
		signals = append(signals, "email")
	}
	if nearMatch(src.nom, ed.Nom) {
		total += nomWeight
		signals = append(signals, "nom")
	}
	if nearMatch(src.prenom, ed.Prenom) {
		total += prenomWeight
		signals = append(signals, "prenom")
	}
	if o.department != "" && ed.Classe != nil {
		label := Normalize(ed.Classe.Code)
		if label == "" {
			label = Normalize(ed.Classe.Libelle)
		}
		if label != "" && strings.Contains(o.department, label) {
			total += departmentWeight
			signals = append(signals, "departement")
		}
	}
	return total, signals
}

// Resolve scores profile against every entry of directory and returns the
// best candidate when its score reaches MatchThreshold. Equal scores are
// broken by the lowest directory id so the result does not depend on the
// order the directory was delivered in.
func Resolve(profile models.SourceProfile, role Role, directory []models.DirectoryEntry, opts ...Option) (Match, bool) {
	if !role.valid() {
		return Match{}, false
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	src := deriveIdentity(profile)

	var (
		best        *models.DirectoryEntry
		bestScore   int
		bestSignals []string
	)
	for i := range directory {
		ed := &directory[i]
		s, signals := score(src, *ed, o)
		if s == 0 {
			continue
		}
		if best == nil || s > bestScore || (s == bestScore && ed.ID < best.ID) {
			best, bestScore, bestSignals = ed, s, signals
		}
	}
	if best == nil || bestScore < MatchThreshold {
		return Match{}, false
	}

	return Match{
		Score:    bestScore,
		Signals:  bestSignals,
		Identity: bind(*best, role),
	}, true
}

// ResolveLabel parses a provider role label then resolves.
func ResolveLabel(profile models.SourceProfile, label string, directory []models.DirectoryEntry, opts ...Option) (Match, bool, error) {
	role, err := ParseRole(label)
	if err != nil {
		return Match{}, false, err
	}
	m, ok := Resolve(profile, role, directory, opts...)
	return m, ok, nil
}

func bind(ed models.DirectoryEntry, role Role) models.BoundIdentity {
	id := models.BoundIdentity{
		ID:              ed.ID,
		Role:            role.String(),
		Nom:             Normalize(ed.Nom),
		Prenom:          Normalize(ed.Prenom),
		Email:           strings.TrimSpace(ed.Email),
		DirectoryNom:    strings.TrimSpace(ed.Nom),
		DirectoryPrenom: strings.TrimSpace(ed.Prenom),
	}
	if c := ed.Classe; c != nil && (c.ID != 0 || c.Code != "" || c.Libelle != "") {
		id.ClasseID = c.ID
		id.ClasseCode = c.Code
		id.ClasseLibelle = c.Libelle
	}
	return id
}
