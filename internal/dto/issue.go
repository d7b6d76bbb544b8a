package dto

import "github.com/civicgrid/civicgrid-api/internal/models"

// CreateIssueRequest is the citizen intake payload. Priority is optional:
// when the external classifier has already graded the report it is passed
// through, otherwise the keyword classifier assigns one.
type CreateIssueRequest struct {
	Title       string                `json:"title" binding:"required,max=200"`
	Description string                `json:"description" binding:"required,max=2000"`
	Category    models.IssueCategory  `json:"category" binding:"required"`
	Address     string                `json:"address" binding:"required,max=300"`
	Latitude    *float64              `json:"latitude,omitempty"`
	Longitude   *float64              `json:"longitude,omitempty"`
	Priority    *models.IssuePriority `json:"priority,omitempty"`
	ReportRef   *string               `json:"report_ref,omitempty"`
}

// IssueQuery filters the issue list endpoint.
type IssueQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	Priority string `form:"priority"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}

// ResolveIssueRequest carries resolution evidence from the resolving staff
// member. Location is optional; when present it is geofence-checked against
// the reported location.
type ResolveIssueRequest struct {
	Photo     *string  `json:"photo,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Note      string   `json:"note,omitempty" binding:"max=1000"`
}

// IssueWithHistory bundles an issue with its escalation trail.
type IssueWithHistory struct {
	models.Issue
	EscalationHistory []models.EscalationEntry `json:"escalation_history"`
}
