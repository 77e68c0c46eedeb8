package models

// UserRole represents the roles recognised by the authorization checks.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
)

// Principal is the already-verified acting user threaded into every service call.
type Principal struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}

// IsAdmin reports whether the principal bypasses program ownership checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
