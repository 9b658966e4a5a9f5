package domain

import (
	"strings"

	dErrors "landregistry/pkg/domain-errors"
)

// Role is the user type recorded on every account.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleLandOfficer Role = "LAND_OFFICER"
	RoleCitizen     Role = "CITIZEN"
	RoleNotary      Role = "NOTARY"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleLandOfficer, RoleCitizen, RoleNotary:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts role names case-insensitively. An empty string yields CITIZEN.
func ParseRole(s string) (Role, error) {
	if strings.TrimSpace(s) == "" {
		return RoleCitizen, nil
	}
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown user_type")
	}
	return r, nil
}
