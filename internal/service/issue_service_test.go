package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/internal/repository"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type stubIssueStore struct {
	issues    map[string]*models.Issue
	history   map[string][]models.EscalationEntry
	acceptErr error
	resolves  []repository.ResolveParams
}

func newStubIssueStore() *stubIssueStore {
	return &stubIssueStore{
		issues:  map[string]*models.Issue{},
		history: map[string][]models.EscalationEntry{},
	}
}

func (s *stubIssueStore) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = "issue-" + issue.Title
	}
	if issue.Status == "" {
		issue.Status = models.StatusReported
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	copied := *issue
	s.issues[issue.ID] = &copied
	return nil
}

func (s *stubIssueStore) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	if issue, ok := s.issues[id]; ok {
		copied := *issue
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubIssueStore) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	var out []models.Issue
	for _, issue := range s.issues {
		out = append(out, *issue)
	}
	return out, len(out), nil
}

func (s *stubIssueStore) AcceptExclusive(ctx context.Context, issueID, staffID string, now time.Time) error {
	if s.acceptErr != nil {
		return s.acceptErr
	}
	issue, ok := s.issues[issueID]
	if !ok {
		return sql.ErrNoRows
	}
	if issue.AcceptedBy != nil {
		return sql.ErrNoRows
	}
	if issue.AssignedTo != nil && *issue.AssignedTo != staffID {
		return sql.ErrNoRows
	}
	issue.AcceptedBy = &staffID
	issue.AcceptedAt = &now
	issue.AssignedTo = &staffID
	issue.Status = models.StatusInProgress
	return nil
}

func (s *stubIssueStore) Resolve(ctx context.Context, p repository.ResolveParams) error {
	issue, ok := s.issues[p.ID]
	if !ok || issue.Status != models.StatusInProgress {
		return sql.ErrNoRows
	}
	s.resolves = append(s.resolves, p)
	issue.Status = models.StatusResolved
	issue.ResolvedAt = &p.Now
	issue.ResolvedBy = &p.ResolvedBy
	issue.PointsAwarded = true
	return nil
}

func (s *stubIssueStore) History(ctx context.Context, issueID string) ([]models.EscalationEntry, error) {
	return s.history[issueID], nil
}

type stubUserStore struct {
	users map[string]*models.User
}

func (s *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func testResolutionConfig() config.ResolutionConfig {
	return config.ResolutionConfig{GeofenceMaxMeters: 100, PointBonus: 50}
}

func newTestIssueService(issues *stubIssueStore, users *stubUserStore) *IssueService {
	classifier := NewClassifierService(config.ClassifierConfig{Timeout: time.Second}, nil)
	return NewIssueService(issues, users, nil, classifier, nil, testResolutionConfig(), nil)
}

func TestIssueServiceCreateClassifiesPriority(t *testing.T) {
	issues := newStubIssueStore()
	svc := newTestIssueService(issues, &stubUserStore{})

	issue, err := svc.Create(context.Background(), "citizen-1", dto.CreateIssueRequest{
		Title:       "Gas leak near the market",
		Description: "Strong smell of gas near the vegetable market",
		Category:    models.CategoryOther,
		Address:     "Market Road",
	})
	require.NoError(t, err)
	require.Equal(t, models.PriorityUrgent, issue.Priority)
	require.Equal(t, models.StatusReported, issue.Status)
	require.NotEmpty(t, issue.ReportRef)
	require.Equal(t, "citizen-1", issue.ReportedBy)
}

func TestIssueServiceCreateMintsReportRef(t *testing.T) {
	issues := newStubIssueStore()
	svc := newTestIssueService(issues, &stubUserStore{})

	issue, err := svc.Create(context.Background(), "citizen-1", dto.CreateIssueRequest{
		Title:       "Blocked drain",
		Description: "Storm drain clogged with debris",
		Category:    models.CategorySanitation,
		Address:     "Canal Street",
	})
	require.NoError(t, err)
	require.NotNil(t, issue.ReportRef)
	require.True(t, strings.HasPrefix(*issue.ReportRef, "CIV-"))

	supplied := "WARD12-0042"
	issue, err = svc.Create(context.Background(), "citizen-1", dto.CreateIssueRequest{
		Title:       "Blocked drain again",
		Description: "Same drain, new blockage",
		Category:    models.CategorySanitation,
		Address:     "Canal Street",
		ReportRef:   &supplied,
	})
	require.NoError(t, err)
	require.NotNil(t, issue.ReportRef)
	require.Equal(t, supplied, *issue.ReportRef)
}

func TestIssueServiceCreateKeepsCallerPriority(t *testing.T) {
	issues := newStubIssueStore()
	svc := newTestIssueService(issues, &stubUserStore{})

	low := models.PriorityLow
	issue, err := svc.Create(context.Background(), "citizen-1", dto.CreateIssueRequest{
		Title:       "Faded zebra crossing",
		Description: "Paint worn out at the school junction",
		Category:    models.CategoryRoad,
		Address:     "School Junction",
		Priority:    &low,
	})
	require.NoError(t, err)
	require.Equal(t, models.PriorityLow, issue.Priority)
}

func TestIssueServiceCreateRejectsUnknownCategory(t *testing.T) {
	svc := newTestIssueService(newStubIssueStore(), &stubUserStore{})

	_, err := svc.Create(context.Background(), "citizen-1", dto.CreateIssueRequest{
		Title:       "Something",
		Description: "Something else",
		Category:    models.IssueCategory("parks"),
		Address:     "Somewhere",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestIssueServiceAcceptHappyPath(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = &models.Issue{
		ID: "issue-1", Status: models.StatusReported, ReportedBy: "citizen-1",
		CreatedAt: time.Now().UTC(),
	}
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	issue, err := svc.Accept(context.Background(), "issue-1", "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, issue.Status)
	require.Equal(t, "staff-1", *issue.AcceptedBy)
}

func TestIssueServiceAcceptRejectsCitizens(t *testing.T) {
	issues := newStubIssueStore()
	users := &stubUserStore{users: map[string]*models.User{
		"citizen-1": {ID: "citizen-1", Role: models.RoleCitizen},
	}}
	svc := newTestIssueService(issues, users)

	_, err := svc.Accept(context.Background(), "issue-1", "citizen-1")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestIssueServiceAcceptLostRace(t *testing.T) {
	other := "staff-other"
	issues := newStubIssueStore()
	issues.issues["issue-1"] = &models.Issue{
		ID: "issue-1", Status: models.StatusInProgress, AcceptedBy: &other,
		ReportedBy: "citizen-1", CreatedAt: time.Now().UTC(),
	}
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	_, err := svc.Accept(context.Background(), "issue-1", "staff-1")
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyAccepted))
}

func TestIssueServiceAcceptAssignedToAnotherForbidden(t *testing.T) {
	owner := "staff-owner"
	role := models.RoleFieldStaff
	issues := newStubIssueStore()
	issues.issues["issue-1"] = &models.Issue{
		ID: "issue-1", Status: models.StatusAssigned, ReportedBy: "citizen-1",
		AssignedRole: &role, AssignedTo: &owner,
		CreatedAt: time.Now().UTC(),
	}
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	// Claiming an issue held by someone else is a permission problem,
	// not a retryable race.
	_, err := svc.Accept(context.Background(), "issue-1", "staff-1")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestIssueServiceAcceptMissingIssue(t *testing.T) {
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(newStubIssueStore(), users)

	_, err := svc.Accept(context.Background(), "missing", "staff-1")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func acceptedIssue(acceptedBy string, lat, lng float64) *models.Issue {
	return &models.Issue{
		ID: "issue-1", Status: models.StatusInProgress,
		AcceptedBy: &acceptedBy, ReportedBy: "citizen-1",
		Latitude: &lat, Longitude: &lng,
		CreatedAt: time.Now().UTC().Add(-72 * time.Hour),
	}
}

func TestIssueServiceResolveByAccepter(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = acceptedIssue("staff-1", 12.9716, 77.5946)
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	lat, lng := 12.9716, 77.5946
	photo := "https://cdn.example/after.jpg"
	issue, err := svc.Resolve(context.Background(), "issue-1", "staff-1", dto.ResolveIssueRequest{
		Photo: &photo, Latitude: &lat, Longitude: &lng,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusResolved, issue.Status)

	require.Len(t, issues.resolves, 1)
	p := issues.resolves[0]
	require.True(t, p.AwardPoints)
	require.Equal(t, "citizen-1", p.ReporterID)
	require.Equal(t, 50, p.PointBonus)
	require.Equal(t, 3, p.ResolutionDays)
}

func TestIssueServiceResolveGeofenceViolation(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = acceptedIssue("staff-1", 12.9716, 77.5946)
	users := &stubUserStore{users: map[string]*models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	// About 1.1km north of the reported location.
	lat, lng := 12.9816, 77.5946
	_, err := svc.Resolve(context.Background(), "issue-1", "staff-1", dto.ResolveIssueRequest{
		Latitude: &lat, Longitude: &lng,
	})
	require.True(t, appErrors.Is(err, appErrors.ErrGeofence))
	require.Empty(t, issues.resolves)
}

func TestIssueServiceResolveByOtherStaffForbidden(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = acceptedIssue("staff-1", 12.9716, 77.5946)
	users := &stubUserStore{users: map[string]*models.User{
		"staff-2": {ID: "staff-2", Role: models.RoleFieldStaff, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	_, err := svc.Resolve(context.Background(), "issue-1", "staff-2", dto.ResolveIssueRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestIssueServiceResolveByAdminOverride(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = acceptedIssue("staff-1", 12.9716, 77.5946)
	users := &stubUserStore{users: map[string]*models.User{
		"admin-1": {ID: "admin-1", Role: models.RoleAdmin, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	issue, err := svc.Resolve(context.Background(), "issue-1", "admin-1", dto.ResolveIssueRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StatusResolved, issue.Status)
}

func TestIssueServiceResolveUnacceptedIssue(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = &models.Issue{
		ID: "issue-1", Status: models.StatusReported, ReportedBy: "citizen-1",
		CreatedAt: time.Now().UTC(),
	}
	users := &stubUserStore{users: map[string]*models.User{
		"admin-1": {ID: "admin-1", Role: models.RoleAdmin, Active: true},
	}}
	svc := newTestIssueService(issues, users)

	// Even admins cannot resolve an issue nobody has accepted.
	_, err := svc.Resolve(context.Background(), "issue-1", "admin-1", dto.ResolveIssueRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestIssueServiceGetWithHistory(t *testing.T) {
	issues := newStubIssueStore()
	issues.issues["issue-1"] = &models.Issue{ID: "issue-1", Status: models.StatusEscalated, CreatedAt: time.Now().UTC()}
	issues.history["issue-1"] = []models.EscalationEntry{
		{ID: "e-1", IssueID: "issue-1", FromRole: "field_staff", ToRole: models.RoleSupervisor},
	}
	svc := newTestIssueService(issues, &stubUserStore{})

	got, err := svc.Get(context.Background(), "issue-1")
	require.NoError(t, err)
	require.Equal(t, "issue-1", got.ID)
	require.Len(t, got.EscalationHistory, 1)

	_, err = svc.Get(context.Background(), "missing")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
