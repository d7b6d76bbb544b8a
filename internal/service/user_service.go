package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

const pgUniqueViolation = "23505"

type accountStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id, fullName string, ts time.Time) error
	SetActive(ctx context.Context, id string, active bool, ts time.Time) error
	ListStaff(ctx context.Context, filter models.StaffFilter) ([]models.User, int, error)
}

// UserService manages citizen registration and staff accounts.
type UserService struct {
	store     accountStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(store accountStore, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{store: store, validator: validate, logger: logger}
}

// RegisterCitizen creates a citizen account. Registration is open; the role
// is fixed server-side.
func (s *UserService) RegisterCitizen(ctx context.Context, req dto.RegisterCitizenRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: strings.TrimSpace(req.FullName),
		Role:     models.RoleCitizen,
		Active:   true,
	}
	if err := s.createWithPassword(ctx, user, req.Password); err != nil {
		return nil, err
	}

	s.logger.Info("citizen registered", zap.String("user_id", user.ID))
	return user, nil
}

// CreateStaff creates a staff account with department coverage. Departments
// must name known categories or the wildcard marker.
func (s *UserService) CreateStaff(ctx context.Context, req dto.CreateStaffRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}
	for _, dept := range req.Departments {
		if dept != models.DepartmentAll && !models.ValidCategory(models.IssueCategory(dept)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department "+dept)
		}
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:    strings.TrimSpace(req.FullName),
		Role:        models.Role(req.Role),
		Departments: pq.StringArray(req.Departments),
		Active:      true,
	}
	if err := s.createWithPassword(ctx, user, req.Password); err != nil {
		return nil, err
	}

	s.logger.Info("staff account created",
		zap.String("user_id", user.ID),
		zap.String("role", req.Role))
	return user, nil
}

func (s *UserService) createWithPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash password")
	}
	user.PasswordHash = string(hash)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := s.store.Create(ctx, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return err
	}
	return nil
}

// Profile returns the account for the given id.
func (s *UserService) Profile(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile changes the caller's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, id string, req dto.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if err := s.store.UpdateProfile(ctx, id, strings.TrimSpace(req.FullName), time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}
	return s.Profile(ctx, id)
}

// Deactivate disables an account. Admins cannot deactivate themselves.
func (s *UserService) Deactivate(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot deactivate your own account")
	}
	if err := s.store.SetActive(ctx, targetID, false, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return err
	}
	s.logger.Info("account deactivated",
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID))
	return nil
}

// ListStaff pages through staff accounts for the admin console.
func (s *UserService) ListStaff(ctx context.Context, query dto.StaffQuery) ([]models.User, *models.Pagination, error) {
	filter := models.StaffFilter{
		Role:     models.Role(query.Role),
		Active:   query.Active,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	staff, total, err := s.store.ListStaff(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	return staff, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}, nil
}
