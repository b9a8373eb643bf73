package auth

import "time"

// Role classifies what a user may do. Route and feature permissions are
// derived from it in the guard's capability table.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOperator:
		return true
	}
	return false
}

// ParseRole normalizes a raw role string, defaulting to operator.
func ParseRole(raw string) Role {
	r := Role(raw)
	if r.Valid() {
		return r
	}
	return RoleOperator
}

// User represents an authenticated user account. Values are replaced
// wholesale on auth changes, never mutated field by field.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
