package models

import "time"

// CategoryCount is one slice of the issues-by-category breakdown.
type CategoryCount struct {
	Category IssueCategory `db:"category" json:"category"`
	Count    int           `db:"count" json:"count"`
}

// StatusCount is one slice of the issues-by-status breakdown.
type StatusCount struct {
	Status IssueStatus `db:"status" json:"status"`
	Count  int         `db:"count" json:"count"`
}

// IssueAnalytics aggregates the dashboard numbers.
type IssueAnalytics struct {
	TotalIssues    int             `json:"total_issues"`
	OpenIssues     int             `json:"open_issues"`
	ResolvedIssues int             `json:"resolved_issues"`
	ByCategory     []CategoryCount `json:"by_category"`
	ByStatus       []StatusCount   `json:"by_status"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot for the admin dashboard.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	SweepsTotal              uint64    `json:"sweeps_total"`
	EscalationsTotal         uint64    `json:"escalations_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
