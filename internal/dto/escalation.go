package dto

import "time"

// SweepOutcome labels one issue's result inside a sweep.
type SweepOutcome string

const (
	OutcomeAssigned   SweepOutcome = "assigned"
	OutcomeEscalated  SweepOutcome = "escalated"
	OutcomeSkipped    SweepOutcome = "skipped"
	OutcomeNotOverdue SweepOutcome = "not_overdue"
	OutcomeFailed     SweepOutcome = "failed"
	OutcomeTerminal   SweepOutcome = "terminal"
	OutcomeNoStaff    SweepOutcome = "no_eligible_staff"
)

// SweepResult records the outcome for a single issue.
type SweepResult struct {
	IssueID string       `json:"issue_id"`
	Outcome SweepOutcome `json:"outcome"`
	ToRole  string       `json:"to_role,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// SweepReport aggregates one sweep run. Both the scheduler tick and the
// manual admin trigger receive this shape.
type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Checked    int           `json:"checked"`
	Escalated  int           `json:"escalated"`
	Failed     int           `json:"failed"`
	Results    []SweepResult `json:"results"`
}

// SweepStatus reports whether a sweep is in flight and the last completed
// run, if any.
type SweepStatus struct {
	Running    bool         `json:"running"`
	LastReport *SweepReport `json:"last_report,omitempty"`
}
