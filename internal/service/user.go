package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/internal/repository"
)

// UpdateProfileInput carries the profile fields a user may change. Nil
// pointers mean "leave unchanged"; email, role and flags are not updatable
// through this path.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// UserService implements profile and administrative user operations.
type UserService struct {
	users    repository.UserRepository
	sessions repository.RefreshSessionRepository
	events   EventProducer
	logger   *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(
	users repository.UserRepository,
	sessions repository.RefreshSessionRepository,
	events EventProducer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		events:   events,
		logger:   logger,
	}
}

// GetByID returns the user with the given ID.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile applies the given changes to the user's profile.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("user_id", id.String()),
	)
	s.events.UserUpdated(ctx, user)
	return user, nil
}

// Delete soft-deletes the user and revokes every live session first, so no
// outstanding refresh token survives the account.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
		return err
	}

	if err := s.users.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", id.String()),
	)
	s.events.UserDeleted(ctx, id.String())
	return nil
}

// List returns a page of users together with the total count.
func (s *UserService) List(ctx context.Context, page, pageSize int) ([]*domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	users, err := s.users.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}
