package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicgrid/civicgrid-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, departments, active, points, login_count, last_login, created_at, updated_at`

// UserRepository persists citizen and staff accounts. Staff directory
// queries order by activity (least-used first, then most recent login) so
// assignment load-balances across the pool.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the account matching the email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns the account matching the id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// RecordLogin bumps the activity counter and stamps the login time. The
// counter doubles as the assignment load-balancing key.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET login_count = login_count + 1, last_login = $1, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, ts, id); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

const staffOrder = ` ORDER BY login_count ASC, last_login DESC NULLS LAST`

// FindActiveByRoleAndCategory returns active staff with the role whose
// department set names the category explicitly or carries the wildcard
// marker. Wildcard staff serve every category, so they compete with
// department staff on equal footing here.
func (r *UserRepository) FindActiveByRoleAndCategory(ctx context.Context, role models.Role, category models.IssueCategory) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
WHERE role = $1 AND active = TRUE
  AND (departments @> ARRAY[$2]::text[] OR departments @> ARRAY[$3]::text[])` + staffOrder
	var staff []models.User
	if err := r.db.SelectContext(ctx, &staff, query, role, string(category), models.DepartmentAll); err != nil {
		return nil, fmt.Errorf("find staff by role and category: %w", err)
	}
	return staff, nil
}

// FindActiveByRoleWildcard returns active staff with the role carrying the
// wildcard department marker (department-agnostic fallback).
func (r *UserRepository) FindActiveByRoleWildcard(ctx context.Context, role models.Role) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
WHERE role = $1 AND active = TRUE AND departments @> ARRAY[$2]::text[]` + staffOrder
	var staff []models.User
	if err := r.db.SelectContext(ctx, &staff, query, role, models.DepartmentAll); err != nil {
		return nil, fmt.Errorf("find wildcard staff by role: %w", err)
	}
	return staff, nil
}

// FindActiveByRole returns every active staff member with the role,
// regardless of department.
func (r *UserRepository) FindActiveByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND active = TRUE` + staffOrder
	var staff []models.User
	if err := r.db.SelectContext(ctx, &staff, query, role); err != nil {
		return nil, fmt.Errorf("find staff by role: %w", err)
	}
	return staff, nil
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, departments, active, points, login_count, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :role, :departments, :active, :points, :login_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile changes the mutable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, fullName string, ts time.Time) error {
	const query = `UPDATE users SET full_name = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, fullName, ts, id)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireMatch(res, "update profile")
}

// SetActive toggles an account. Deactivated staff stop receiving
// assignments on the next directory query.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool, ts time.Time) error {
	const query = `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, active, ts, id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return requireMatch(res, "set user active")
}

// ListStaff pages through staff accounts, optionally narrowed by role.
func (r *UserRepository) ListStaff(ctx context.Context, filter models.StaffFilter) ([]models.User, int, error) {
	where := `WHERE role <> 'citizen'`
	args := []interface{}{}
	argPos := 1
	if filter.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", argPos)
		args = append(args, filter.Role)
		argPos++
	}
	if filter.Active != nil {
		where += fmt.Sprintf(" AND active = $%d", argPos)
		args = append(args, *filter.Active)
		argPos++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM users ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count staff: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ` + where +
		fmt.Sprintf(` ORDER BY full_name ASC LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	var staff []models.User
	if err := r.db.SelectContext(ctx, &staff, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list staff: %w", err)
	}
	return staff, total, nil
}

// CreateRefreshToken stores a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up a refresh token by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
FROM refresh_tokens WHERE token = $1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &stored, nil
}

// RevokeRefreshToken marks a single token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, revokedAt, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE user_id = $2 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
