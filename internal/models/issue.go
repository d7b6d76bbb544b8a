package models

import "time"

// IssuePriority is assigned at creation by the classifier and never changes.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
	PriorityUrgent IssuePriority = "urgent"
)

// IssueStatus captures the issue lifecycle.
type IssueStatus string

const (
	StatusReported   IssueStatus = "reported"
	StatusAssigned   IssueStatus = "assigned"
	StatusInProgress IssueStatus = "in_progress"
	StatusEscalated  IssueStatus = "escalated"
	StatusResolved   IssueStatus = "resolved"
)

// IssueCategory enumerates the municipal departments an issue can belong to.
type IssueCategory string

const (
	CategoryRoad        IssueCategory = "road"
	CategoryWater       IssueCategory = "water"
	CategorySanitation  IssueCategory = "sanitation"
	CategoryElectricity IssueCategory = "electricity"
	CategoryStreetlight IssueCategory = "streetlight"
	CategoryOther       IssueCategory = "other"
)

// ValidCategory reports whether c is a known category.
func ValidCategory(c IssueCategory) bool {
	switch c {
	case CategoryRoad, CategoryWater, CategorySanitation, CategoryElectricity, CategoryStreetlight, CategoryOther:
		return true
	default:
		return false
	}
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p IssuePriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Issue is the citizen-reported record tracked through assignment,
// escalation, and resolution. assigned_to unset with assigned_role set means
// a department-wide assignment claimable by any eligible staff member.
type Issue struct {
	ID          string        `db:"id" json:"id"`
	ReportRef   *string       `db:"report_ref" json:"report_ref,omitempty"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Category    IssueCategory `db:"category" json:"category"`
	Priority    IssuePriority `db:"priority" json:"priority"`
	Status      IssueStatus   `db:"status" json:"status"`
	Address     string        `db:"address" json:"address"`
	Latitude    *float64      `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64      `db:"longitude" json:"longitude,omitempty"`
	ReportedBy  string        `db:"reported_by" json:"reported_by"`

	AssignedRole *Role      `db:"assigned_role" json:"assigned_role,omitempty"`
	AssignedTo   *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedBy   *string    `db:"assigned_by" json:"assigned_by,omitempty"`
	AssignedAt   *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`

	AcceptedBy *string    `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`

	EscalationDeadline *time.Time `db:"escalation_deadline" json:"escalation_deadline,omitempty"`

	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy      *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionPhoto *string    `db:"resolution_photo" json:"resolution_photo,omitempty"`
	ResolutionLat   *float64   `db:"resolution_lat" json:"resolution_lat,omitempty"`
	ResolutionLng   *float64   `db:"resolution_lng" json:"resolution_lng,omitempty"`
	ResolutionDays  *int       `db:"resolution_days" json:"resolution_days,omitempty"`
	PointsAwarded   bool       `db:"points_awarded" json:"points_awarded"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EscalationEntry is one immutable row of an issue's escalation history.
// FromRole is "unassigned" for the fast-track recovery path.
type EscalationEntry struct {
	ID        string    `db:"id" json:"id"`
	IssueID   string    `db:"issue_id" json:"issue_id"`
	FromRole  string    `db:"from_role" json:"from_role"`
	ToRole    Role      `db:"to_role" json:"to_role"`
	ByWhom    string    `db:"by_whom" json:"by_whom"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FromRoleUnassigned marks history entries written when an issue enters the
// hierarchy without a prior role.
const FromRoleUnassigned = "unassigned"

// IssueFilter captures filtering criteria for listing issues.
type IssueFilter struct {
	Status     *IssueStatus
	Category   *IssueCategory
	Priority   *IssuePriority
	ReportedBy string
	AssignedTo string
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
