package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleStudent    UserRole = "STUDENT"
)

// Actor is the authenticated identity performing an operation. It is passed
// explicitly into every workflow call.
type Actor struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the actor may adjudicate payments and manage any enrollment.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// CanActFor reports whether the actor may act on a resource owned by studentID.
func (a Actor) CanActFor(studentID string) bool {
	return a.IsAdmin() || (a.Role == RoleStudent && a.UserID != "" && a.UserID == studentID)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
