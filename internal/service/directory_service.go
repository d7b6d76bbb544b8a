package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/models"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type staffDirectoryStore interface {
	FindActiveByRoleAndCategory(ctx context.Context, role models.Role, category models.IssueCategory) ([]models.User, error)
	FindActiveByRoleWildcard(ctx context.Context, role models.Role) ([]models.User, error)
	FindActiveByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// DirectoryService resolves which staff members should receive an issue at a
// given escalation level. Lookups degrade through three tiers: staff whose
// departments name the category or the wildcard, then strictly wildcard
// staff, then anyone active at the role. Results arrive pre-ordered by the
// repository so the first entry is always the least-loaded candidate.
type DirectoryService struct {
	store  staffDirectoryStore
	logger *zap.Logger
}

// NewDirectoryService constructs the directory service.
func NewDirectoryService(store staffDirectoryStore, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{store: store, logger: logger}
}

// FindEligibleStaff returns every candidate for (role, category) from the
// first non-empty tier.
func (s *DirectoryService) FindEligibleStaff(ctx context.Context, role models.Role, category models.IssueCategory) ([]models.User, error) {
	staff, err := s.store.FindActiveByRoleAndCategory(ctx, role, category)
	if err != nil {
		return nil, fmt.Errorf("directory category lookup: %w", err)
	}
	if len(staff) > 0 {
		return staff, nil
	}

	staff, err = s.store.FindActiveByRoleWildcard(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("directory wildcard lookup: %w", err)
	}
	if len(staff) > 0 {
		s.logger.Debug("no department match, using wildcard staff",
			zap.String("role", string(role)), zap.String("category", string(category)))
		return staff, nil
	}

	staff, err = s.store.FindActiveByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("directory role lookup: %w", err)
	}
	if len(staff) == 0 {
		return nil, appErrors.ErrNoEligibleStaff
	}
	s.logger.Debug("no department or wildcard match, using any active staff",
		zap.String("role", string(role)), zap.String("category", string(category)))
	return staff, nil
}

// FindOneEligibleStaff returns the least-loaded candidate for (role, category).
func (s *DirectoryService) FindOneEligibleStaff(ctx context.Context, role models.Role, category models.IssueCategory) (*models.User, error) {
	staff, err := s.FindEligibleStaff(ctx, role, category)
	if err != nil {
		return nil, err
	}
	return &staff[0], nil
}
