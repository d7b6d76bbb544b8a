package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/models"
)

func newIssueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func issueRows(issue models.Issue) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "report_ref", "title", "description", "category", "priority", "status", "address",
		"latitude", "longitude", "reported_by", "assigned_role", "assigned_to", "assigned_by", "assigned_at",
		"accepted_by", "accepted_at", "escalation_deadline", "resolved_at", "resolved_by", "resolution_photo",
		"resolution_lat", "resolution_lng", "resolution_days", "points_awarded", "created_at", "updated_at",
	}).AddRow(
		issue.ID, issue.ReportRef, issue.Title, issue.Description, issue.Category, issue.Priority, issue.Status, issue.Address,
		issue.Latitude, issue.Longitude, issue.ReportedBy, issue.AssignedRole, issue.AssignedTo, issue.AssignedBy, issue.AssignedAt,
		issue.AcceptedBy, issue.AcceptedAt, issue.EscalationDeadline, issue.ResolvedAt, issue.ResolvedBy, issue.ResolutionPhoto,
		issue.ResolutionLat, issue.ResolutionLng, issue.ResolutionDays, issue.PointsAwarded, issue.CreatedAt, issue.UpdatedAt,
	)
}

func TestIssueRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO issues")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	issue := &models.Issue{
		Title:       "Broken streetlight on 5th avenue",
		Description: "Pole has been dark for a week",
		Category:    models.CategoryStreetlight,
		Priority:    models.PriorityMedium,
		Address:     "5th Avenue, Ward 12",
		ReportedBy:  "citizen-1",
	}
	require.NoError(t, repo.Create(context.Background(), issue))
	require.NotEmpty(t, issue.ID)
	require.Equal(t, models.StatusReported, issue.Status)

	mock.ExpectQuery("SELECT (.+) FROM issues WHERE id").
		WithArgs(issue.ID).
		WillReturnRows(issueRows(*issue))

	fetched, err := repo.GetByID(context.Background(), issue.ID)
	require.NoError(t, err)
	require.Equal(t, issue.ID, fetched.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryAcceptExclusive(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE issues").
		WithArgs("staff-1", now, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AcceptExclusive(context.Background(), "issue-1", "staff-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryAcceptExclusiveLostRace(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE issues").
		WithArgs("staff-2", now, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AcceptExclusive(context.Background(), "issue-1", "staff-2", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryAssignGuard(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	deadline := now.Add(8 * time.Hour)
	mock.ExpectExec("UPDATE issues").
		WithArgs(models.RoleFieldStaff, "staff-1", "system", now, models.StatusAssigned, deadline, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Assign(context.Background(), AssignParams{
		ID:         "issue-1",
		Role:       models.RoleFieldStaff,
		AssignedTo: "staff-1",
		AssignedBy: "system",
		Status:     models.StatusAssigned,
		Deadline:   deadline,
		Now:        now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryEscalate(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	deadline := now.Add(12 * time.Hour)
	from := models.RoleFieldStaff

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues").
		WithArgs(models.RoleSupervisor, "sup-1", "system", now, deadline, "issue-1", from).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO escalation_history")).
		WithArgs(sqlmock.AnyArg(), "issue-1", string(from), models.RoleSupervisor, "system", "deadline elapsed", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Escalate(context.Background(), EscalateParams{
		ID:              "issue-1",
		FromRole:        &from,
		ToRole:          models.RoleSupervisor,
		PrimaryAssignee: "sup-1",
		Actor:           "system",
		Reason:          "deadline elapsed",
		Deadline:        deadline,
		Now:             now,
	})
	require.NoError(t, err)
	require.Equal(t, string(from), entry.FromRole)
	require.Equal(t, models.RoleSupervisor, entry.ToRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryEscalateLostRace(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	from := models.RoleFieldStaff

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Escalate(context.Background(), EscalateParams{
		ID:       "issue-1",
		FromRole: &from,
		ToRole:   models.RoleSupervisor,
		Actor:    "system",
		Reason:   "deadline elapsed",
		Deadline: now.Add(time.Hour),
		Now:      now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryEscalateFastTrack(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	deadline := now.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues").
		WithArgs(models.RoleCommissioner, "com-1", "system", now, deadline, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO escalation_history")).
		WithArgs(sqlmock.AnyArg(), "issue-1", models.FromRoleUnassigned, models.RoleCommissioner, "system", "aged past commissioner threshold", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Escalate(context.Background(), EscalateParams{
		ID:              "issue-1",
		FromRole:        nil,
		ToRole:          models.RoleCommissioner,
		PrimaryAssignee: "com-1",
		Actor:           "system",
		Reason:          "aged past commissioner threshold",
		Deadline:        deadline,
		Now:             now,
	})
	require.NoError(t, err)
	require.Equal(t, models.FromRoleUnassigned, entry.FromRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryResolveAwardsPoints(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	photo := "https://cdn.example/photo.jpg"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues").
		WithArgs(now, "staff-1", &photo, nil, nil, 3, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points +")).
		WithArgs(50, now, "citizen-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Resolve(context.Background(), ResolveParams{
		ID:             "issue-1",
		ResolvedBy:     "staff-1",
		Photo:          &photo,
		ResolutionDays: 3,
		Now:            now,
		AwardPoints:    true,
		ReporterID:     "citizen-1",
		PointBonus:     50,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryResolvePointsFailureAborts(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE issues").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points +")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Resolve(context.Background(), ResolveParams{
		ID:          "issue-1",
		ResolvedBy:  "staff-1",
		Now:         now,
		AwardPoints: true,
		ReporterID:  "missing-citizen",
		PointBonus:  50,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryListOverdue(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	role := models.RoleFieldStaff
	deadline := now.Add(-time.Hour)
	issue := models.Issue{
		ID:                 "issue-1",
		Title:              "Pothole",
		Category:           models.CategoryRoad,
		Priority:           models.PriorityHigh,
		Status:             models.StatusEscalated,
		ReportedBy:         "citizen-1",
		AssignedRole:       &role,
		EscalationDeadline: &deadline,
		CreatedAt:          now.Add(-48 * time.Hour),
		UpdatedAt:          now.Add(-time.Hour),
	}

	mock.ExpectQuery("SELECT (.+) FROM issues").
		WithArgs(now, now.Add(-time.Hour)).
		WillReturnRows(issueRows(issue))

	overdue, err := repo.ListOverdue(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "issue-1", overdue[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryListOverdueSeesAssignedStatus(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now().UTC()
	role := models.RoleFieldStaff
	deadline := now.Add(-2 * time.Hour)

	// An assigned-but-never-accepted issue keeps 'assigned' status; the
	// sweep query must admit it alongside the other live statuses.
	issue := models.Issue{
		ID:                 "issue-assigned",
		Title:              "Water main leak",
		Category:           models.CategoryWater,
		Priority:           models.PriorityHigh,
		Status:             models.StatusAssigned,
		ReportedBy:         "citizen-1",
		AssignedRole:       &role,
		EscalationDeadline: &deadline,
		CreatedAt:          now.Add(-12 * time.Hour),
		UpdatedAt:          now.Add(-12 * time.Hour),
	}

	mock.ExpectQuery(regexp.QuoteMeta("status IN ('reported', 'assigned', 'in_progress', 'escalated')")).
		WithArgs(now, now.Add(-time.Hour)).
		WillReturnRows(issueRows(issue))

	overdue, err := repo.ListOverdue(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, models.StatusAssigned, overdue[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryBackfillDeadline(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	deadline := time.Now().UTC().Add(4 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET escalation_deadline")).
		WithArgs(deadline, sqlmock.AnyArg(), "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.BackfillDeadline(context.Background(), "issue-1", deadline))
	require.NoError(t, mock.ExpectationsWereMet())
}
