package service

import (
	"time"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
)

// EscalationPolicy is the pure timing arm of the escalation engine. It
// answers two questions: how long may an issue sit at a given role, and,
// for an issue that was never routed at all, which role its age has grown
// into. All answers derive from the configured window table.
type EscalationPolicy struct {
	cfg config.EscalationConfig
}

// NewEscalationPolicy builds a policy over the configured window table.
func NewEscalationPolicy(cfg config.EscalationConfig) *EscalationPolicy {
	return &EscalationPolicy{cfg: cfg}
}

// Deadline returns the instant at which an issue of the given priority,
// placed at the given role now, becomes overdue.
func (p *EscalationPolicy) Deadline(now time.Time, priority models.IssuePriority, role models.Role) time.Time {
	return now.Add(p.cfg.Window(string(priority), string(role)))
}

// Window exposes the raw duration for a (priority, role) pair.
func (p *EscalationPolicy) Window(priority models.IssuePriority, role models.Role) time.Duration {
	return p.cfg.Window(string(priority), string(role))
}

// TargetRoleForAge maps an unassigned issue's age onto the role that should
// now own it. The window table is read cumulatively: an issue older than the
// field staff window belongs to a supervisor, older than field staff plus
// supervisor belongs to the commissioner. The boolean is false when the age
// is still inside the first window and ordinary assignment applies.
func (p *EscalationPolicy) TargetRoleForAge(age time.Duration, priority models.IssuePriority) (models.Role, bool) {
	cumulative := time.Duration(0)
	for i, role := range models.EscalationLevels {
		cumulative += p.Window(priority, role)
		if age <= cumulative {
			if i == 0 {
				return "", false
			}
			return role, true
		}
	}
	// Older than the whole table: park it at the top level.
	return models.EscalationLevels[len(models.EscalationLevels)-1], true
}
