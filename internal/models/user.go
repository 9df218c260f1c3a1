package models

import "time"

// UserRole represents the roles recognised by the authorization policy.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleWorker     UserRole = "WORKER"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleWorker
}

// IsStaff reports whether the role belongs to the review/finance staff.
func (r UserRole) IsStaff() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// User represents an account stored in the users table. Workers carry an
// optional personal rate and pricing grade.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	BaseRate  *int64    `db:"base_rate" json:"base_rate,omitempty"`
	GradeID   *string   `db:"grade_id" json:"grade_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
