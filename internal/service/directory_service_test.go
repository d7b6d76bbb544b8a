package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/models"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type stubStaffDirectoryStore struct {
	byCategory []models.User
	wildcard   []models.User
	byRole     []models.User

	categoryCalls int
	wildcardCalls int
	roleCalls     int
}

func (s *stubStaffDirectoryStore) FindActiveByRoleAndCategory(ctx context.Context, role models.Role, category models.IssueCategory) ([]models.User, error) {
	s.categoryCalls++
	return s.byCategory, nil
}

func (s *stubStaffDirectoryStore) FindActiveByRoleWildcard(ctx context.Context, role models.Role) ([]models.User, error) {
	s.wildcardCalls++
	return s.wildcard, nil
}

func (s *stubStaffDirectoryStore) FindActiveByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	s.roleCalls++
	return s.byRole, nil
}

func TestDirectoryServicePrefersCategoryMatch(t *testing.T) {
	store := &stubStaffDirectoryStore{
		byCategory: []models.User{{ID: "dept-staff"}},
		wildcard:   []models.User{{ID: "wildcard-staff"}},
	}
	svc := NewDirectoryService(store, nil)

	staff, err := svc.FindEligibleStaff(context.Background(), models.RoleFieldStaff, models.CategoryRoad)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	require.Equal(t, "dept-staff", staff[0].ID)
	require.Zero(t, store.wildcardCalls)
	require.Zero(t, store.roleCalls)
}

func TestDirectoryServiceFallsBackToWildcard(t *testing.T) {
	store := &stubStaffDirectoryStore{
		wildcard: []models.User{{ID: "wildcard-staff"}},
		byRole:   []models.User{{ID: "any-staff"}},
	}
	svc := NewDirectoryService(store, nil)

	staff, err := svc.FindEligibleStaff(context.Background(), models.RoleSupervisor, models.CategoryWater)
	require.NoError(t, err)
	require.Equal(t, "wildcard-staff", staff[0].ID)
	require.Zero(t, store.roleCalls)
}

func TestDirectoryServiceFallsBackToAnyActiveStaff(t *testing.T) {
	store := &stubStaffDirectoryStore{
		byRole: []models.User{{ID: "any-staff"}},
	}
	svc := NewDirectoryService(store, nil)

	staff, err := svc.FindEligibleStaff(context.Background(), models.RoleCommissioner, models.CategoryOther)
	require.NoError(t, err)
	require.Equal(t, "any-staff", staff[0].ID)
	require.Equal(t, 1, store.categoryCalls)
	require.Equal(t, 1, store.wildcardCalls)
	require.Equal(t, 1, store.roleCalls)
}

func TestDirectoryServiceNoEligibleStaff(t *testing.T) {
	svc := NewDirectoryService(&stubStaffDirectoryStore{}, nil)

	_, err := svc.FindEligibleStaff(context.Background(), models.RoleFieldStaff, models.CategorySanitation)
	require.ErrorIs(t, err, appErrors.ErrNoEligibleStaff)
}

func TestDirectoryServiceFindOneReturnsLeastLoaded(t *testing.T) {
	store := &stubStaffDirectoryStore{
		byCategory: []models.User{{ID: "least-loaded"}, {ID: "busier"}},
	}
	svc := NewDirectoryService(store, nil)

	staff, err := svc.FindOneEligibleStaff(context.Background(), models.RoleFieldStaff, models.CategoryRoad)
	require.NoError(t, err)
	require.Equal(t, "least-loaded", staff.ID)
}
