package models

import "time"

// SourceProfile is the identity record returned by the identity provider at login.
type SourceProfile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department,omitempty"`
}

type ClasseRef struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	Libelle string `json:"libelle"`
}

// DirectoryEntry is one person of the school directory.
type DirectoryEntry struct {
	ID      int        `json:"id"`
	Nom     string     `json:"nom"`
	Prenom  string     `json:"prenom"`
	Email   string     `json:"email,omitempty"`
	Classe  *ClasseRef `json:"classe,omitempty"`
	Matiere string     `json:"matiere,omitempty"`
}

// BoundIdentity is the directory entry accepted for a source profile. It is
// created once per login and never modified afterwards.
type BoundIdentity struct {
	ID     int    `json:"id"`
	Role   string `json:"role"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
	Email  string `json:"email,omitempty"`

	// Directory spelling, kept for timetable display strings ("DUPONT J.").
	DirectoryNom    string `json:"directory_nom"`
	DirectoryPrenom string `json:"directory_prenom"`

	ClasseID      int    `json:"classe_id,omitempty"`
	ClasseCode    string `json:"classe_code,omitempty"`
	ClasseLibelle string `json:"classe_libelle,omitempty"`
}

// HasClasse reports whether the identity is bound to a class.
func (b BoundIdentity) HasClasse() bool { return b.ClasseID != 0 }

// ScheduleEntry is one timetable slot.
type ScheduleEntry struct {
	ID       int       `json:"id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Salle    string    `json:"salle"`
	ClasseID int       `json:"classe_id"`
	Classe   string    `json:"classe"`
	Prof     string    `json:"prof"`
	Matiere  string    `json:"matiere"`
}

type RoomEntry struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Libelle string `json:"libelle"`
}

// Decision is the outcome of one tap event.
type Decision struct {
	Status   int    `json:"status"`
	Reason   string `json:"reason"`
	CourseID int    `json:"course_id,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
}

// Allowed reports whether the tap was accepted.
func (d Decision) Allowed() bool { return d.Status == 200 }
