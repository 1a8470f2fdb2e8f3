package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hotelkalsubai/backend/internal/domain"
	"github.com/hotelkalsubai/backend/internal/event"
	"github.com/hotelkalsubai/backend/internal/repository"
	apperrors "github.com/hotelkalsubai/backend/pkg/errors"
)

// UserService implements the administrative user-management operations.
type UserService struct {
	userRepo repository.UserRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewUserService creates a new user management service.
func NewUserService(userRepo repository.UserRepository, producer *event.Producer, logger *slog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		producer: producer,
		logger:   logger,
	}
}

// List returns all user accounts.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Get returns a single user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateRole replaces a user's role set. Granting ADMIN keeps the USER role
// alongside it; any other role value resets the account to a plain user.
func (s *UserService) UpdateRole(ctx context.Context, id, role string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if role == domain.RoleAdmin {
		user.Roles = []string{domain.RoleAdmin, domain.RoleUser}
	} else {
		user.Roles = []string{domain.RoleUser}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user roles: %w", err)
	}

	if err := s.producer.PublishUserRoleUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.role_updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user roles updated",
		slog.String("user_id", user.ID),
		slog.String("role", role),
	)

	return user, nil
}

// Delete removes a user account permanently.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", id)
		}
		return fmt.Errorf("get user: %w", err)
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := s.producer.PublishUserDeleted(ctx, user.ID, user.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", user.ID),
	)

	return nil
}
