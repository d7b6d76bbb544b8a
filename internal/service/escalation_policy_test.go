package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
)

func testEscalationConfig() config.EscalationConfig {
	return config.EscalationConfig{
		Enabled:       true,
		SweepInterval: 30 * time.Minute,
		GraceWindow:   time.Hour,
		Windows: map[string]map[string]time.Duration{
			"urgent": {
				"field_staff":  2 * time.Hour,
				"supervisor":   4 * time.Hour,
				"commissioner": 8 * time.Hour,
			},
			"medium": {
				"field_staff":  24 * time.Hour,
				"supervisor":   48 * time.Hour,
				"commissioner": 72 * time.Hour,
			},
		},
	}
}

func TestEscalationPolicyDeadline(t *testing.T) {
	policy := NewEscalationPolicy(testEscalationConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(2*time.Hour), policy.Deadline(now, models.PriorityUrgent, models.RoleFieldStaff))
	require.Equal(t, now.Add(4*time.Hour), policy.Deadline(now, models.PriorityUrgent, models.RoleSupervisor))
	require.Equal(t, now.Add(48*time.Hour), policy.Deadline(now, models.PriorityMedium, models.RoleSupervisor))
}

func TestEscalationPolicyDeadlineUnknownPriorityFallsBack(t *testing.T) {
	policy := NewEscalationPolicy(testEscalationConfig())
	now := time.Now().UTC()

	// Unknown priority falls back to the medium/field_staff window.
	require.Equal(t, now.Add(24*time.Hour), policy.Deadline(now, models.IssuePriority("critical"), models.RoleFieldStaff))
}

func TestEscalationPolicyTargetRoleForAge(t *testing.T) {
	policy := NewEscalationPolicy(testEscalationConfig())

	cases := []struct {
		name     string
		age      time.Duration
		priority models.IssuePriority
		want     models.Role
		overdue  bool
	}{
		{"fresh urgent stays at first level", time.Hour, models.PriorityUrgent, "", false},
		{"urgent past field window goes to supervisor", 3 * time.Hour, models.PriorityUrgent, models.RoleSupervisor, true},
		{"urgent past both windows goes to commissioner", 7 * time.Hour, models.PriorityUrgent, models.RoleCommissioner, true},
		{"urgent past the whole table stays at commissioner", 20 * time.Hour, models.PriorityUrgent, models.RoleCommissioner, true},
		{"medium inside first window", 12 * time.Hour, models.PriorityMedium, "", false},
		{"medium past field window goes to supervisor", 30 * time.Hour, models.PriorityMedium, models.RoleSupervisor, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role, overdue := policy.TargetRoleForAge(tc.age, tc.priority)
			require.Equal(t, tc.overdue, overdue)
			require.Equal(t, tc.want, role)
		})
	}
}
