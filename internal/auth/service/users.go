package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// CreateUserInput carries the fields of a new account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     string
}

func validRole(role string) bool {
	switch role {
	case repository.RoleAdmin, repository.RoleFarmaceutico, repository.RoleCompras:
		return true
	}
	return false
}

// CreateUser registers a new account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, input CreateUserInput) (*UserInfo, error) {
	if !validRole(input.Role) {
		return nil, errors.BadRequest("role must be admin, farmaceutico or compras")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	user := &repository.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		FullName:     input.FullName,
		Role:         input.Role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("role", user.Role).
		Msg("user created")

	return toUserInfo(user), nil
}

// ListUsers lists accounts with pagination. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, page, perPage int, role, status string) ([]*repository.User, int64, error) {
	return s.users.List(ctx, page, perPage, role, status)
}

// SetUserStatus activates or deactivates an account. Deactivation revokes
// every open session so outstanding refresh tokens stop working.
func (s *AuthService) SetUserStatus(ctx context.Context, id, status string) error {
	if status != repository.UserActive && status != repository.UserInactive {
		return errors.BadRequest("status must be ACTIVO or INACTIVO")
	}

	if err := s.users.SetStatus(ctx, id, status); err != nil {
		return err
	}

	if status == repository.UserInactive {
		if err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("user_id", id).Msg("failed to revoke sessions")
		}
	}

	s.logger.Info().Str("user_id", id).Str("status", status).Msg("user status changed")
	return nil
}
