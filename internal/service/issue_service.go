package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/internal/repository"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type issueStore interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
	AcceptExclusive(ctx context.Context, issueID, staffID string, now time.Time) error
	Resolve(ctx context.Context, p repository.ResolveParams) error
	History(ctx context.Context, issueID string) ([]models.EscalationEntry, error)
}

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IssueService handles the citizen-facing issue lifecycle: intake, exclusive
// acceptance, and resolution. Routing decisions are delegated to the
// escalation engine; this service only triggers them.
type IssueService struct {
	issues     issueStore
	users      userStore
	engine     *EscalationService
	classifier *ClassifierService
	notifier   *NotificationService
	resolution config.ResolutionConfig
	logger     *zap.Logger
}

// NewIssueService constructs the issue service.
func NewIssueService(
	issues issueStore,
	users userStore,
	engine *EscalationService,
	classifier *ClassifierService,
	notifier *NotificationService,
	resolution config.ResolutionConfig,
	logger *zap.Logger,
) *IssueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{
		issues:     issues,
		users:      users,
		engine:     engine,
		classifier: classifier,
		notifier:   notifier,
		resolution: resolution,
		logger:     logger,
	}
}

// Create validates and persists a new report, then attempts immediate
// assignment. Assignment failure (typically no eligible staff yet) leaves
// the issue in reported state for the sweep to pick up later; the citizen's
// submission never fails because of it.
func (s *IssueService) Create(ctx context.Context, reporterID string, req dto.CreateIssueRequest) (*models.Issue, error) {
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	fallback := models.PriorityMedium
	if req.Priority != nil {
		if !models.ValidPriority(*req.Priority) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", *req.Priority))
		}
		fallback = *req.Priority
	}

	priority := fallback
	if s.classifier != nil {
		priority = s.classifier.Classify(ctx, req.Title, req.Description, fallback)
	}

	issue := &models.Issue{
		ReportRef:   reportRef(req.ReportRef),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Priority:    priority,
		Address:     strings.TrimSpace(req.Address),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ReportedBy:  reporterID,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, err
	}

	if s.engine != nil {
		if err := s.engine.Assign(ctx, issue); err != nil {
			s.logger.Warn("immediate assignment failed, sweep will retry",
				zap.String("issue_id", issue.ID), zap.Error(err))
		}
	}

	created, err := s.issues.GetByID(ctx, issue.ID)
	if err != nil {
		// The insert succeeded; return what we have rather than fail
		// the submission over a read.
		return issue, nil
	}
	return created, nil
}

// Get returns an issue with its escalation trail.
func (s *IssueService) Get(ctx context.Context, id string) (*dto.IssueWithHistory, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}

	history, err := s.issues.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.IssueWithHistory{Issue: *issue, EscalationHistory: history}, nil
}

// List returns issues matching the filter plus the unpaged total.
func (s *IssueService) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	return s.issues.List(ctx, filter)
}

// Accept lets a staff member exclusively claim an issue. The claim is a
// single compare-and-set; when it loses, the issue is re-read purely to give
// the caller an accurate reason.
func (s *IssueService) Accept(ctx context.Context, issueID, actorID string) (*models.Issue, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, err
	}
	if !models.IsEmployeeRole(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff can accept issues")
	}

	now := time.Now().UTC()
	if err := s.issues.AcceptExclusive(ctx, issueID, actorID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.acceptConflict(ctx, issueID, actorID)
		}
		return nil, err
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("issue accepted",
		zap.String("issue_id", issueID), zap.String("accepted_by", actorID))
	return issue, nil
}

// acceptConflict turns a lost acceptance race into a precise error.
func (s *IssueService) acceptConflict(ctx context.Context, issueID, actorID string) error {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return err
	}

	switch {
	case issue.AcceptedBy != nil && *issue.AcceptedBy == actorID:
		return appErrors.Clone(appErrors.ErrConflict, "you have already accepted this issue")
	case issue.AcceptedBy != nil:
		return appErrors.ErrAlreadyAccepted
	case issue.Status == models.StatusResolved:
		return appErrors.Clone(appErrors.ErrConflict, "issue is already resolved")
	case issue.AssignedTo != nil && *issue.AssignedTo != actorID:
		return appErrors.Clone(appErrors.ErrForbidden, "issue is assigned to another staff member")
	default:
		return appErrors.Clone(appErrors.ErrConflict, "issue cannot be accepted in its current state")
	}
}

// Resolve closes an accepted issue. Only the accepting staff member or an
// admin may resolve; evidence location, when provided, must fall inside the
// geofence around the reported location. The first resolution credits the
// reporter.
func (s *IssueService) Resolve(ctx context.Context, issueID, actorID string, req dto.ResolveIssueRequest) (*models.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, err
	}

	if issue.Status != models.StatusInProgress || issue.AcceptedBy == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only accepted in-progress issues can be resolved")
	}
	if *issue.AcceptedBy != actorID && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the accepting staff member or an admin can resolve this issue")
	}

	if req.Latitude != nil && req.Longitude != nil && issue.Latitude != nil && issue.Longitude != nil {
		distance := haversineMeters(*issue.Latitude, *issue.Longitude, *req.Latitude, *req.Longitude)
		if distance > s.resolution.GeofenceMaxMeters {
			return nil, appErrors.Clone(appErrors.ErrGeofence,
				fmt.Sprintf("resolution location is %.0fm from the report, limit is %.0fm", distance, s.resolution.GeofenceMaxMeters))
		}
	}

	now := time.Now().UTC()
	days := int(now.Sub(issue.CreatedAt).Hours() / 24)
	err = s.issues.Resolve(ctx, repository.ResolveParams{
		ID:             issueID,
		ResolvedBy:     actorID,
		Photo:          req.Photo,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ResolutionDays: days,
		Now:            now,
		AwardPoints:    !issue.PointsAwarded,
		ReporterID:     issue.ReportedBy,
		PointBonus:     s.resolution.PointBonus,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "issue state changed before resolution")
		}
		return nil, err
	}

	s.logger.Info("issue resolved",
		zap.String("issue_id", issueID),
		zap.String("resolved_by", actorID),
		zap.Int("resolution_days", days))

	if s.classifier != nil {
		s.classifier.RemoveReport(ctx, issue)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, models.Notification{
			IssueID:     issueID,
			RecipientID: issue.ReportedBy,
			ActorID:     &actorID,
			Kind:        models.NotificationResolved,
			Message:     fmt.Sprintf("Your report %q has been resolved", issue.Title),
		}); err != nil {
			s.logger.Warn("reporter resolution notification failed",
				zap.String("issue_id", issueID), zap.Error(err))
		}
	}

	return s.issues.GetByID(ctx, issueID)
}

// History returns the escalation trail for an issue.
func (s *IssueService) History(ctx context.Context, issueID string) ([]models.EscalationEntry, error) {
	return s.issues.History(ctx, issueID)
}

// reportRef keeps a caller-supplied reference or mints one. References are
// short, uppercase, and prefixed so support staff can read them aloud.
func reportRef(supplied *string) *string {
	if supplied != nil && strings.TrimSpace(*supplied) != "" {
		ref := strings.TrimSpace(*supplied)
		return &ref
	}
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	ref := fmt.Sprintf("CIV-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
	return &ref
}
