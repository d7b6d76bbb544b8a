package models

import (
	"time"

	"github.com/lib/pq"
)

// Role represents the available roles for the RBAC system. Field staff,
// supervisor, and commissioner form the escalation hierarchy; employee is a
// generic staff role outside it.
type Role string

const (
	RoleCitizen      Role = "citizen"
	RoleFieldStaff   Role = "field_staff"
	RoleSupervisor   Role = "supervisor"
	RoleCommissioner Role = "commissioner"
	RoleEmployee     Role = "employee"
	RoleAdmin        Role = "admin"
)

// EscalationLevels is the ordered role hierarchy traversed by escalation.
var EscalationLevels = []Role{RoleFieldStaff, RoleSupervisor, RoleCommissioner}

// NextRole returns the successor of r in the hierarchy. ok is false when r
// is the top level or not part of the hierarchy at all.
func NextRole(r Role) (Role, bool) {
	for i, level := range EscalationLevels {
		if level == r {
			if i+1 < len(EscalationLevels) {
				return EscalationLevels[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// IsEscalationRole reports whether r participates in the hierarchy.
func IsEscalationRole(r Role) bool {
	for _, level := range EscalationLevels {
		if level == r {
			return true
		}
	}
	return false
}

// IsEmployeeRole reports whether r may accept and work on issues.
func IsEmployeeRole(r Role) bool {
	switch r {
	case RoleFieldStaff, RoleSupervisor, RoleCommissioner, RoleEmployee:
		return true
	default:
		return false
	}
}

// DepartmentAll is the wildcard department marker: staff carrying it service
// every category.
const DepartmentAll = "All"

// User represents a citizen or staff account stored in the users table.
// Departments, LoginCount, and LastLogin only carry meaning for staff roles;
// Points only for citizens.
type User struct {
	ID           string         `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	FullName     string         `db:"full_name" json:"full_name"`
	Role         Role           `db:"role" json:"role"`
	Departments  pq.StringArray `db:"departments" json:"departments"`
	Active       bool           `db:"active" json:"active"`
	Points       int            `db:"points" json:"points"`
	LoginCount   int            `db:"login_count" json:"login_count"`
	LastLogin    *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// StaffFilter narrows the admin staff listing.
type StaffFilter struct {
	Role     Role
	Active   *bool
	Page     int
	PageSize int
}

// ServesCategory reports whether the staff member's department set covers
// the given category, honoring the wildcard.
func (u *User) ServesCategory(category IssueCategory) bool {
	for _, dept := range u.Departments {
		if dept == DepartmentAll || dept == string(category) {
			return true
		}
	}
	return false
}
