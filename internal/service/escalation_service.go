package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/internal/repository"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

// SystemActor marks transitions performed by the engine rather than a person.
const SystemActor = "system"

type sweepMetrics interface {
	SweepCompleted(report *dto.SweepReport)
	IssueEscalated(toRole string)
}

// EscalationService owns routing: first assignment of fresh issues,
// deadline-driven escalation up the role hierarchy, and the periodic sweep
// that catches whatever slipped through. All writes go through conditional
// repository updates, so two concurrent sweeps or a sweep racing a staff
// acceptance converge instead of double-routing.
type EscalationService struct {
	issues    issueEngineStore
	directory *DirectoryService
	policy    *EscalationPolicy
	notifier  *NotificationService
	cfg       config.EscalationConfig
	metrics   sweepMetrics
	logger    *zap.Logger

	sweepMu sync.Mutex

	lastMu     sync.Mutex
	lastReport *dto.SweepReport
}

// issueEngineStore is the repository surface the engine needs.
type issueEngineStore interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	ListOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]models.Issue, error)
	Assign(ctx context.Context, p repository.AssignParams) error
	Escalate(ctx context.Context, p repository.EscalateParams) (*models.EscalationEntry, error)
	BackfillDeadline(ctx context.Context, id string, deadline time.Time) error
}

// NewEscalationService constructs the engine. metrics may be nil.
func NewEscalationService(
	issues issueEngineStore,
	directory *DirectoryService,
	policy *EscalationPolicy,
	notifier *NotificationService,
	cfg config.EscalationConfig,
	metrics sweepMetrics,
	logger *zap.Logger,
) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		issues:    issues,
		directory: directory,
		policy:    policy,
		notifier:  notifier,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Assign routes a fresh issue to the least-loaded field staff member for its
// category and stamps the first escalation deadline. Lost races (someone
// assigned or accepted first) surface as ErrConflict.
func (s *EscalationService) Assign(ctx context.Context, issue *models.Issue) error {
	staff, err := s.directory.FindOneEligibleStaff(ctx, models.RoleFieldStaff, issue.Category)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	deadline := s.policy.Deadline(now, issue.Priority, models.RoleFieldStaff)
	err = s.issues.Assign(ctx, repository.AssignParams{
		ID:         issue.ID,
		Role:       models.RoleFieldStaff,
		AssignedTo: staff.ID,
		AssignedBy: SystemActor,
		Status:     models.StatusAssigned,
		Deadline:   deadline,
		Now:        now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "issue was routed concurrently")
		}
		return fmt.Errorf("assign issue %s: %w", issue.ID, err)
	}

	s.logger.Info("issue assigned",
		zap.String("issue_id", issue.ID),
		zap.String("assigned_to", staff.ID),
		zap.Time("deadline", deadline))

	if s.notifier != nil {
		s.notifier.NotifyAll(ctx, []models.User{*staff}, func(models.User) models.Notification {
			return models.Notification{
				IssueID: issue.ID,
				Kind:    models.NotificationAssigned,
				Message: fmt.Sprintf("New %s issue assigned to you: %s", issue.Priority, issue.Title),
			}
		})
	}
	return nil
}

// Escalate moves an issue one level up the hierarchy. The actor is the
// system during sweeps or a staff/admin user for manual escalation. At the
// top of the hierarchy it returns ErrTopOfHierarchy and changes nothing.
func (s *EscalationService) Escalate(ctx context.Context, issue *models.Issue, actor, reason string) (*models.EscalationEntry, error) {
	if issue.Status == models.StatusResolved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "resolved issues cannot be escalated")
	}

	var fromRole *models.Role
	current := models.RoleFieldStaff
	if issue.AssignedRole != nil {
		current = *issue.AssignedRole
		fromRole = issue.AssignedRole
	}

	next, ok := models.NextRole(current)
	if !ok {
		return nil, appErrors.ErrTopOfHierarchy
	}

	candidates, err := s.directory.FindEligibleStaff(ctx, next, issue.Category)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	deadline := s.policy.Deadline(now, issue.Priority, next)
	entry, err := s.issues.Escalate(ctx, repository.EscalateParams{
		ID:              issue.ID,
		FromRole:        fromRole,
		ToRole:          next,
		PrimaryAssignee: candidates[0].ID,
		Actor:           actor,
		Reason:          reason,
		Deadline:        deadline,
		Now:             now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "issue state changed during escalation")
		}
		return nil, fmt.Errorf("escalate issue %s: %w", issue.ID, err)
	}

	s.logger.Info("issue escalated",
		zap.String("issue_id", issue.ID),
		zap.String("from_role", entry.FromRole),
		zap.String("to_role", string(next)),
		zap.String("actor", actor),
		zap.String("reason", reason))
	if s.metrics != nil {
		s.metrics.IssueEscalated(string(next))
	}

	if s.notifier != nil {
		s.notifier.NotifyAll(ctx, candidates, func(models.User) models.Notification {
			return models.Notification{
				IssueID: issue.ID,
				Kind:    models.NotificationEscalated,
				Message: fmt.Sprintf("Issue escalated to %s level: %s", next, issue.Title),
			}
		})
	}
	return entry, nil
}

// RunSweep examines every overdue issue and routes it. Only one sweep runs
// at a time; a second caller gets ErrSweepRunning instead of queueing, which
// keeps manual triggers from piling onto the scheduler.
func (s *EscalationService) RunSweep(ctx context.Context) (*dto.SweepReport, error) {
	if !s.sweepMu.TryLock() {
		return nil, appErrors.ErrSweepRunning
	}
	defer s.sweepMu.Unlock()

	report := &dto.SweepReport{StartedAt: time.Now().UTC()}

	overdue, err := s.issues.ListOverdue(ctx, report.StartedAt, s.cfg.GraceWindow)
	if err != nil {
		return nil, fmt.Errorf("list overdue issues: %w", err)
	}

	for i := range overdue {
		issue := &overdue[i]
		result := s.sweepOne(ctx, issue)
		report.Checked++
		report.Results = append(report.Results, result)
		switch result.Outcome {
		case dto.OutcomeEscalated, dto.OutcomeAssigned:
			report.Escalated++
		case dto.OutcomeFailed:
			report.Failed++
		}
	}

	report.FinishedAt = time.Now().UTC()
	s.logger.Info("escalation sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	if s.metrics != nil {
		s.metrics.SweepCompleted(report)
	}

	s.lastMu.Lock()
	s.lastReport = report
	s.lastMu.Unlock()
	return report, nil
}

// SweepStatus reports whether a sweep is in flight and the last completed
// run.
func (s *EscalationService) SweepStatus() dto.SweepStatus {
	status := dto.SweepStatus{Running: true}
	if s.sweepMu.TryLock() {
		status.Running = false
		s.sweepMu.Unlock()
	}

	s.lastMu.Lock()
	status.LastReport = s.lastReport
	s.lastMu.Unlock()
	return status
}

// sweepOne routes a single overdue issue. Failures are contained here: one
// broken issue must not abort the rest of the sweep.
func (s *EscalationService) sweepOne(ctx context.Context, issue *models.Issue) dto.SweepResult {
	result := dto.SweepResult{IssueID: issue.ID}

	switch {
	case issue.AssignedRole == nil:
		// Never routed. Inside the grace window the issue is only
		// counted, leaving room for an immediate assignment retry.
		// Past it, young enough issues get an ordinary first
		// assignment and ones that aged past a window go straight to
		// the role their age demands.
		age := time.Since(issue.CreatedAt)
		if age <= s.cfg.GraceWindow {
			result.Outcome = dto.OutcomeNotOverdue
			result.Reason = "within assignment grace window"
			return result
		}
		target, overdue := s.policy.TargetRoleForAge(age, issue.Priority)
		if !overdue {
			if err := s.Assign(ctx, issue); err != nil {
				return s.sweepFailure(result, issue, err)
			}
			result.Outcome = dto.OutcomeAssigned
			result.ToRole = string(models.RoleFieldStaff)
			return result
		}
		entry, err := s.fastTrack(ctx, issue, target, age)
		if err != nil {
			return s.sweepFailure(result, issue, err)
		}
		result.Outcome = dto.OutcomeEscalated
		result.ToRole = string(entry.ToRole)
		result.Reason = entry.Reason
		return result

	case issue.EscalationDeadline == nil:
		// Legacy row from before deadlines were stamped. Give it a
		// fresh window at its current level instead of escalating
		// blind.
		deadline := s.policy.Deadline(time.Now().UTC(), issue.Priority, *issue.AssignedRole)
		if err := s.issues.BackfillDeadline(ctx, issue.ID, deadline); err != nil {
			return s.sweepFailure(result, issue, err)
		}
		result.Outcome = dto.OutcomeSkipped
		result.Reason = "deadline backfilled"
		return result

	default:
		entry, err := s.Escalate(ctx, issue, SystemActor, "escalation deadline elapsed")
		if err != nil {
			if appErrors.Is(err, appErrors.ErrTopOfHierarchy) {
				result.Outcome = dto.OutcomeTerminal
				result.Reason = "already at top of hierarchy"
				return result
			}
			return s.sweepFailure(result, issue, err)
		}
		result.Outcome = dto.OutcomeEscalated
		result.ToRole = string(entry.ToRole)
		return result
	}
}

func (s *EscalationService) sweepFailure(result dto.SweepResult, issue *models.Issue, err error) dto.SweepResult {
	if appErrors.Is(err, appErrors.ErrNoEligibleStaff) {
		result.Outcome = dto.OutcomeNoStaff
		result.Reason = "no eligible staff at target role"
		s.logger.Warn("sweep found no eligible staff", zap.String("issue_id", issue.ID))
		return result
	}
	if appErrors.Is(err, appErrors.ErrConflict) {
		// Someone accepted or routed the issue mid-sweep. That is the
		// system working, not a failure.
		result.Outcome = dto.OutcomeSkipped
		result.Reason = "issue state changed during sweep"
		return result
	}
	result.Outcome = dto.OutcomeFailed
	result.Reason = err.Error()
	s.logger.Error("sweep failed for issue", zap.String("issue_id", issue.ID), zap.Error(err))
	return result
}

// fastTrack escalates a never-assigned issue directly to the role its age
// requires, bypassing the levels it already outgrew.
func (s *EscalationService) fastTrack(ctx context.Context, issue *models.Issue, target models.Role, age time.Duration) (*models.EscalationEntry, error) {
	candidates, err := s.directory.FindEligibleStaff(ctx, target, issue.Category)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry, err := s.issues.Escalate(ctx, repository.EscalateParams{
		ID:              issue.ID,
		FromRole:        nil,
		ToRole:          target,
		PrimaryAssignee: candidates[0].ID,
		Actor:           SystemActor,
		Reason:          fmt.Sprintf("unassigned for %s, routed to %s", age.Round(time.Minute), target),
		Deadline:        s.policy.Deadline(now, issue.Priority, target),
		Now:             now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "issue state changed during escalation")
		}
		return nil, fmt.Errorf("fast-track issue %s: %w", issue.ID, err)
	}
	if s.metrics != nil {
		s.metrics.IssueEscalated(string(target))
	}

	if s.notifier != nil {
		s.notifier.NotifyAll(ctx, candidates, func(models.User) models.Notification {
			return models.Notification{
				IssueID: issue.ID,
				Kind:    models.NotificationEscalated,
				Message: fmt.Sprintf("Unattended issue routed to %s level: %s", target, issue.Title),
			}
		})
	}
	return entry, nil
}

// StartScheduler runs sweeps on the configured interval until ctx is
// cancelled. Returns immediately when escalation is disabled.
func (s *EscalationService) StartScheduler(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("escalation scheduler disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		s.logger.Info("escalation scheduler started", zap.Duration("interval", s.cfg.SweepInterval))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("escalation scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.RunSweep(ctx); err != nil && !appErrors.Is(err, appErrors.ErrSweepRunning) {
					s.logger.Error("scheduled sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
