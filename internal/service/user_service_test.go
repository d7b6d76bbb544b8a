package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type stubAccountStore struct {
	users     map[string]*models.User
	createErr error
}

func newStubAccountStore() *stubAccountStore {
	return &stubAccountStore{users: map[string]*models.User{}}
}

func (s *stubAccountStore) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (s *stubAccountStore) Create(_ context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return &pq.Error{Code: pq.ErrorCode(pgUniqueViolation)}
		}
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *stubAccountStore) UpdateProfile(_ context.Context, id, fullName string, ts time.Time) error {
	user, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.FullName = fullName
	user.UpdatedAt = ts
	return nil
}

func (s *stubAccountStore) SetActive(_ context.Context, id string, active bool, ts time.Time) error {
	user, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Active = active
	user.UpdatedAt = ts
	return nil
}

func (s *stubAccountStore) ListStaff(_ context.Context, filter models.StaffFilter) ([]models.User, int, error) {
	var staff []models.User
	for _, user := range s.users {
		if user.Role == models.RoleCitizen {
			continue
		}
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		staff = append(staff, *user)
	}
	return staff, len(staff), nil
}

func TestUserServiceRegisterCitizen(t *testing.T) {
	store := newStubAccountStore()
	svc := NewUserService(store, nil, nil)

	user, err := svc.RegisterCitizen(context.Background(), dto.RegisterCitizenRequest{
		Email:    "Asha@Example.com",
		FullName: "Asha Rao",
		Password: "supersecret",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleCitizen, user.Role)
	require.Equal(t, "asha@example.com", user.Email)
	require.True(t, user.Active)

	stored := store.users[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("supersecret")))
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	store := newStubAccountStore()
	svc := NewUserService(store, nil, nil)

	req := dto.RegisterCitizenRequest{Email: "asha@example.com", FullName: "Asha Rao", Password: "supersecret"}
	_, err := svc.RegisterCitizen(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.RegisterCitizen(context.Background(), req)
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUserServiceRegisterRejectsShortPassword(t *testing.T) {
	svc := NewUserService(newStubAccountStore(), nil, nil)

	_, err := svc.RegisterCitizen(context.Background(), dto.RegisterCitizenRequest{
		Email:    "asha@example.com",
		FullName: "Asha Rao",
		Password: "short",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceCreateStaffValidatesDepartments(t *testing.T) {
	svc := NewUserService(newStubAccountStore(), nil, nil)

	_, err := svc.CreateStaff(context.Background(), dto.CreateStaffRequest{
		Email:       "staff@city.gov",
		FullName:    "Ravi Kumar",
		Password:    "supersecret",
		Role:        "field_staff",
		Departments: []string{"astronomy"},
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceCreateStaff(t *testing.T) {
	store := newStubAccountStore()
	svc := NewUserService(store, nil, nil)

	user, err := svc.CreateStaff(context.Background(), dto.CreateStaffRequest{
		Email:       "staff@city.gov",
		FullName:    "Ravi Kumar",
		Password:    "supersecret",
		Role:        "field_staff",
		Departments: []string{"road", models.DepartmentAll},
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleFieldStaff, user.Role)
	require.Len(t, user.Departments, 2)
}

func TestUserServiceUpdateProfile(t *testing.T) {
	store := newStubAccountStore()
	svc := NewUserService(store, nil, nil)

	user, err := svc.RegisterCitizen(context.Background(), dto.RegisterCitizenRequest{
		Email:    "asha@example.com",
		FullName: "Asha Rao",
		Password: "supersecret",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(context.Background(), user.ID, dto.UpdateProfileRequest{FullName: "Asha R"})
	require.NoError(t, err)
	require.Equal(t, "Asha R", updated.FullName)
}

func TestUserServiceDeactivateSelfRejected(t *testing.T) {
	svc := NewUserService(newStubAccountStore(), nil, nil)

	err := svc.Deactivate(context.Background(), "admin-1", "admin-1")
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUserServiceDeactivate(t *testing.T) {
	store := newStubAccountStore()
	svc := NewUserService(store, nil, nil)

	user, err := svc.CreateStaff(context.Background(), dto.CreateStaffRequest{
		Email:       "staff@city.gov",
		FullName:    "Ravi Kumar",
		Password:    "supersecret",
		Role:        "field_staff",
		Departments: []string{"road"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), "admin-1", user.ID))
	require.False(t, store.users[user.ID].Active)
}
