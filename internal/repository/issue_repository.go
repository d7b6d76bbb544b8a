package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicgrid/civicgrid-api/internal/models"
)

// issueColumns is the canonical column list for issue scans.
const issueColumns = `id, report_ref, title, description, category, priority, status, address,
latitude, longitude, reported_by, assigned_role, assigned_to, assigned_by, assigned_at,
accepted_by, accepted_at, escalation_deadline, resolved_at, resolved_by, resolution_photo,
resolution_lat, resolution_lng, resolution_days, points_awarded, created_at, updated_at`

// IssueRepository persists issues and their escalation history. Every
// state-changing method is a single conditional write: the WHERE clause
// carries the expected current state and a zero row match surfaces as
// sql.ErrNoRows so callers can distinguish lost races from success.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts a new issue row with generated defaults.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Status == "" {
		issue.Status = models.StatusReported
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now

	const query = `INSERT INTO issues (id, report_ref, title, description, category, priority, status, address,
latitude, longitude, reported_by, points_awarded, created_at, updated_at)
VALUES (:id, :report_ref, :title, :description, :category, :priority, :status, :address,
:latitude, :longitude, :reported_by, :points_awarded, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// GetByID returns an issue row by its identifier.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &issue, nil
}

// List returns issues matching the filter, newest first.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	where := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	argPos := 1

	appendCond := func(cond string, value interface{}) {
		where = append(where, fmt.Sprintf(cond, argPos))
		args = append(args, value)
		argPos++
	}

	if filter.Status != nil {
		appendCond("status = $%d", *filter.Status)
	}
	if filter.Category != nil {
		appendCond("category = $%d", *filter.Category)
	}
	if filter.Priority != nil {
		appendCond("priority = $%d", *filter.Priority)
	}
	if filter.ReportedBy != "" {
		appendCond("reported_by = $%d", filter.ReportedBy)
	}
	if filter.AssignedTo != "" {
		appendCond("assigned_to = $%d", filter.AssignedTo)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM issues" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := fmt.Sprintf("SELECT %s FROM issues%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		issueColumns, clause, argPos, argPos+1)
	args = append(args, pageSize, (page-1)*pageSize)

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	return issues, total, nil
}

// ListOverdue selects the issues a sweep must examine at the given instant.
// The predicate mirrors the escalation engine contract:
//   - at field_staff/supervisor with a due deadline, or
//   - at field_staff/supervisor with no deadline recorded (legacy rows),
//     once assigned or once older than the grace window, or
//   - entirely unassigned and still reported; the engine decides between
//     the grace window, a first assignment, and a fast-track.
//
// Assigned-but-never-accepted issues stay in 'assigned' status, so that
// status must qualify. Commissioner-level and resolved issues never do;
// accepted issues drop out via the status filter once work begins.
func (r *IssueRepository) ListOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues
WHERE status IN ('reported', 'assigned', 'in_progress', 'escalated')
  AND (
    (assigned_role IN ('field_staff', 'supervisor') AND escalation_deadline IS NOT NULL AND escalation_deadline <= $1)
    OR (assigned_role IN ('field_staff', 'supervisor') AND escalation_deadline IS NULL AND assigned_at IS NOT NULL)
    OR (assigned_role IN ('field_staff', 'supervisor') AND escalation_deadline IS NULL AND created_at <= $2)
    OR (assigned_role IS NULL AND status = 'reported')
  )
ORDER BY created_at ASC`
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, now, now.Add(-grace)); err != nil {
		return nil, fmt.Errorf("list overdue issues: %w", err)
	}
	return issues, nil
}

// AssignParams carries a first-assignment transition.
type AssignParams struct {
	ID         string
	Role       models.Role
	AssignedTo string
	AssignedBy string
	Status     models.IssueStatus
	Deadline   time.Time
	Now        time.Time
}

// Assign performs the first-assignment conditional update. The guard
// requires the issue to still be unrouted; a concurrent assignment or
// acceptance makes the update match zero rows, returned as sql.ErrNoRows.
func (r *IssueRepository) Assign(ctx context.Context, p AssignParams) error {
	const query = `UPDATE issues
SET assigned_role = $1, assigned_to = $2, assigned_by = $3, assigned_at = $4,
    status = $5, escalation_deadline = $6, updated_at = $4
WHERE id = $7 AND assigned_role IS NULL AND status IN ('reported', 'in_progress')`
	res, err := r.db.ExecContext(ctx, query, p.Role, p.AssignedTo, p.AssignedBy, p.Now, p.Status, p.Deadline, p.ID)
	if err != nil {
		return fmt.Errorf("assign issue: %w", err)
	}
	return requireMatch(res, "assign issue")
}

// EscalateParams carries a single escalation step. FromRole is nil for the
// unassigned fast-track path; otherwise the update is guarded on it.
type EscalateParams struct {
	ID              string
	FromRole        *models.Role
	ToRole          models.Role
	PrimaryAssignee string
	Actor           string
	Reason          string
	Deadline        time.Time
	Now             time.Time
}

// Escalate applies the role transition and appends the history entry in one
// transaction. The issue update is guarded on the expected current role so a
// racing sweep or accept cannot double-escalate; history rows are insert-only.
func (r *IssueRepository) Escalate(ctx context.Context, p EscalateParams) (*models.EscalationEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin escalate tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var res sql.Result
	if p.FromRole != nil {
		const query = `UPDATE issues
SET assigned_role = $1, assigned_to = $2, assigned_by = $3, assigned_at = $4,
    status = 'escalated', escalation_deadline = $5, updated_at = $4
WHERE id = $6 AND assigned_role = $7 AND status <> 'resolved'`
		res, err = tx.ExecContext(ctx, query, p.ToRole, p.PrimaryAssignee, p.Actor, p.Now, p.Deadline, p.ID, *p.FromRole)
	} else {
		const query = `UPDATE issues
SET assigned_role = $1, assigned_to = $2, assigned_by = $3, assigned_at = $4,
    status = 'escalated', escalation_deadline = $5, updated_at = $4
WHERE id = $6 AND assigned_role IS NULL AND status <> 'resolved'`
		res, err = tx.ExecContext(ctx, query, p.ToRole, p.PrimaryAssignee, p.Actor, p.Now, p.Deadline, p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("escalate issue: %w", err)
	}
	if err := requireMatch(res, "escalate issue"); err != nil {
		return nil, err
	}

	fromRole := models.FromRoleUnassigned
	if p.FromRole != nil {
		fromRole = string(*p.FromRole)
	}
	entry := &models.EscalationEntry{
		ID:        uuid.NewString(),
		IssueID:   p.ID,
		FromRole:  fromRole,
		ToRole:    p.ToRole,
		ByWhom:    p.Actor,
		Reason:    p.Reason,
		CreatedAt: p.Now,
	}
	const insert = `INSERT INTO escalation_history (id, issue_id, from_role, to_role, by_whom, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insert, entry.ID, entry.IssueID, entry.FromRole, entry.ToRole, entry.ByWhom, entry.Reason, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("append escalation history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit escalate tx: %w", err)
	}
	return entry, nil
}

// BackfillDeadline sets the escalation deadline on a legacy row that never
// had one. Guarded on the deadline still being NULL.
func (r *IssueRepository) BackfillDeadline(ctx context.Context, id string, deadline time.Time) error {
	const query = `UPDATE issues SET escalation_deadline = $1, updated_at = $2
WHERE id = $3 AND escalation_deadline IS NULL`
	if _, err := r.db.ExecContext(ctx, query, deadline, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("backfill deadline: %w", err)
	}
	return nil
}

// AcceptExclusive is the exclusive-claim compare-and-set. Under concurrent
// acceptance attempts exactly one update matches; every other caller sees
// sql.ErrNoRows and must re-read for the precise conflict reason.
func (r *IssueRepository) AcceptExclusive(ctx context.Context, issueID, staffID string, now time.Time) error {
	const query = `UPDATE issues
SET status = 'in_progress', accepted_by = $1, accepted_at = $2, assigned_to = $1,
    assigned_by = COALESCE(assigned_by, $1), assigned_at = COALESCE(assigned_at, $2), updated_at = $2
WHERE id = $3 AND status IN ('reported', 'assigned', 'escalated') AND accepted_by IS NULL
  AND (assigned_to IS NULL OR assigned_to = $1)`
	res, err := r.db.ExecContext(ctx, query, staffID, now, issueID)
	if err != nil {
		return fmt.Errorf("accept issue: %w", err)
	}
	return requireMatch(res, "accept issue")
}

// ResolveParams carries the resolution transition.
type ResolveParams struct {
	ID             string
	ResolvedBy     string
	Photo          *string
	Latitude       *float64
	Longitude      *float64
	ResolutionDays int
	Now            time.Time
	AwardPoints    bool
	ReporterID     string
	PointBonus     int
}

// Resolve marks the issue resolved and, when the points flag is still
// unset, credits the reporter inside the same transaction. A failed points
// update aborts the whole resolution: inconsistent accounting is worse than
// a failed resolve.
func (r *IssueRepository) Resolve(ctx context.Context, p ResolveParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE issues
SET status = 'resolved', resolved_at = $1, resolved_by = $2, resolution_photo = $3,
    resolution_lat = $4, resolution_lng = $5, resolution_days = $6, points_awarded = TRUE, updated_at = $1
WHERE id = $7 AND status = 'in_progress' AND accepted_by IS NOT NULL`
	res, err := tx.ExecContext(ctx, query, p.Now, p.ResolvedBy, p.Photo, p.Latitude, p.Longitude, p.ResolutionDays, p.ID)
	if err != nil {
		return fmt.Errorf("resolve issue: %w", err)
	}
	if err := requireMatch(res, "resolve issue"); err != nil {
		return err
	}

	if p.AwardPoints {
		const award = `UPDATE users SET points = points + $1, updated_at = $2 WHERE id = $3`
		awardRes, err := tx.ExecContext(ctx, award, p.PointBonus, p.Now, p.ReporterID)
		if err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		if err := requireMatch(awardRes, "award points"); err != nil {
			return fmt.Errorf("award points: reporter %s: %w", p.ReporterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve tx: %w", err)
	}
	return nil
}

// History returns the append-only escalation trail, oldest first.
func (r *IssueRepository) History(ctx context.Context, issueID string) ([]models.EscalationEntry, error) {
	const query = `SELECT id, issue_id, from_role, to_role, by_whom, reason, created_at
FROM escalation_history WHERE issue_id = $1 ORDER BY created_at ASC`
	var entries []models.EscalationEntry
	if err := r.db.SelectContext(ctx, &entries, query, issueID); err != nil {
		return nil, fmt.Errorf("list escalation history: %w", err)
	}
	return entries, nil
}

// CountByCategory aggregates issue counts per category.
func (r *IssueRepository) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	const query = `SELECT category, COUNT(*) AS count FROM issues GROUP BY category ORDER BY count DESC`
	var counts []models.CategoryCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count issues by category: %w", err)
	}
	return counts, nil
}

// CountByStatus aggregates issue counts per status.
func (r *IssueRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM issues GROUP BY status ORDER BY count DESC`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count issues by status: %w", err)
	}
	return counts, nil
}

// requireMatch converts a zero-row conditional update into sql.ErrNoRows.
func requireMatch(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
