package matcher

import "fmt"

// Role is the closed set of directory populations a profile can belong to.
type Role int

const (
	RoleStudent Role = iota + 1
	RoleTeacher
	RoleStaff
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "eleve"
	case RoleTeacher:
		return "professeur"
	case RoleStaff:
		return "personnel"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Directory names the EcoleDirecte roster a role is resolved against.
func (r Role) Directory() string {
	switch r {
	case RoleStudent:
		return "ELEVES_ALL"
	case RoleTeacher:
		return "PROFESSEURS"
	case RoleStaff:
		return "PERSONNELS"
	}
	return ""
}

func (r Role) valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleStaff
}

// AmbiguousRoleError is returned when a role label does not map to exactly
// one directory.
type AmbiguousRoleError struct {
	Label string
}

func (e *AmbiguousRoleError) Error() string {
	return fmt.Sprintf("matcher: role %q does not map to a directory", e.Label)
}

var roleLabels = map[string]Role{
	"eleve":      RoleStudent,
	"etudiant":   RoleStudent,
	"student":    RoleStudent,
	"professeur": RoleTeacher,
	"formateur":  RoleTeacher,
	"enseignant": RoleTeacher,
	"teacher":    RoleTeacher,
	"personnel":  RoleStaff,
	"staff":      RoleStaff,
}

// ParseRole maps an identity-provider role label (jobTitle) to a Role.
// Matching is case and accent insensitive.
func ParseRole(label string) (Role, error) {
	if r, ok := roleLabels[Normalize(label)]; ok {
		return r, nil
	}
	return 0, &AmbiguousRoleError{Label: label}
}
