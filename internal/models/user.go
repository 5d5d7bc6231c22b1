package models

// UserRole represents the roles that can act on bookings.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

// Actor identifies the authenticated caller of a workflow operation.
type Actor struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
}

// IsAdmin reports whether the actor bypasses ownership checks.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}
