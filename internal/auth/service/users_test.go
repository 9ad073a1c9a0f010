package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	"github.com/farmatrack/farmatrack-backend/internal/auth/service"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/testutil"
)

func TestAuthService_CreateUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc, _ := newAuthService()

	created, err := svc.CreateUser(ctx, service.CreateUserInput{
		Username: "mgarcia",
		Email:    "mgarcia@farmacia.test",
		Password: "secreto123",
		FullName: "María García",
		Role:     repository.RoleFarmaceutico,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, repository.RoleFarmaceutico, created.Role)

	// The new account can log in with the supplied password
	resp, err := svc.Login(ctx, &service.LoginRequest{
		Identifier: "mgarcia",
		Password:   "secreto123",
	}, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, resp.User.ID)
}

func TestAuthService_CreateUser_InvalidRole(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc, _ := newAuthService()

	_, err := svc.CreateUser(ctx, service.CreateUserInput{
		Username: "jperez",
		Email:    "jperez@farmacia.test",
		Password: "secreto123",
		FullName: "Juan Pérez",
		Role:     "gerente",
	})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestAuthService_CreateUser_DuplicateUsername(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc, users := newAuthService()
	existing := seedUser(t, ctx, users)

	_, err := svc.CreateUser(ctx, service.CreateUserInput{
		Username: existing.Username,
		Email:    "otro@farmacia.test",
		Password: "secreto123",
		FullName: "Otro Usuario",
		Role:     repository.RoleCompras,
	})
	assert.ErrorIs(t, err, errors.ErrDuplicateRecord)
}

func TestAuthService_ListUsers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc, users := newAuthService()
	seedUser(t, ctx, users, testutil.WithRole(repository.RoleAdmin))
	seedUser(t, ctx, users, testutil.WithRole(repository.RoleFarmaceutico))

	list, total, err := svc.ListUsers(ctx, 1, 20, repository.RoleAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, repository.RoleAdmin, list[0].Role)
}

func TestAuthService_SetUserStatus_RevokesSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svc, users := newAuthService()
	user := seedUser(t, ctx, users, testutil.WithUsername("csoto"))

	resp, err := svc.Login(ctx, &service.LoginRequest{
		Identifier: "csoto",
		Password:   "password123",
	}, "test-agent", "127.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.SetUserStatus(ctx, user.ID, repository.UserInactive))

	// Open sessions stop refreshing immediately
	_, err = svc.Refresh(ctx, resp.RefreshToken)
	assert.Error(t, err)

	// And logging in again is forbidden
	_, err = svc.Login(ctx, &service.LoginRequest{
		Identifier: "csoto",
		Password:   "password123",
	}, "test-agent", "127.0.0.1")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	err = svc.SetUserStatus(ctx, user.ID, "SUSPENDIDO")
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}
