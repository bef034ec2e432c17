package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/spartak030506-hash/shop-backend/internal/auth"
	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/internal/repository"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

// EventProducer publishes user lifecycle events. Implementations must be
// best-effort: event failures never fail the triggering operation.
type EventProducer interface {
	UserRegistered(ctx context.Context, user *domain.User)
	UserUpdated(ctx context.Context, user *domain.User)
	UserDeleted(ctx context.Context, userID string)
	UserPasswordChanged(ctx context.Context, userID string)
}

// dummyHash is a valid bcrypt digest compared against when login hits an
// unknown email, so the unknown-email and wrong-password paths take
// comparable time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// AuthService implements registration, login and the refresh token lifecycle.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.RefreshSessionRepository
	tokens   *auth.TokenManager
	events   EventProducer
	logger   *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.RefreshSessionRepository,
	tokens *auth.TokenManager,
	events EventProducer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		events:   events,
		logger:   logger,
	}
}

// Register creates a new customer account and signs the user in. The
// password is stored only as a bcrypt digest.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, deviceInfo string) (*domain.User, *domain.TokenPair, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "hash password")
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Phone:        input.Phone,
		Role:         domain.RoleCustomer,
		IsActive:     true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.String()),
	)
	s.events.UserRegistered(ctx, user)

	return user, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password produce the same unauthorized error; only a correct
// password against a deactivated account yields forbidden.
func (s *AuthService) Login(ctx context.Context, email, password, deviceInfo string) (*domain.User, *domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	if !user.IsActive {
		return nil, nil, apperrors.Forbidden("account is deactivated")
	}

	pair, err := s.issuePair(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID.String()),
	)
	return user, pair, nil
}

// Refresh redeems a refresh token for a new pair. Each token is single-use:
// redemption revokes it atomically, so a replayed or concurrent attempt with
// the same token fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceInfo string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Consume(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, err
	}

	// Defense in depth: the stored session must belong to the token subject.
	if session.UserID != claims.UserID {
		s.logger.WarnContext(ctx, "refresh token subject mismatch",
			slog.String("session_user_id", session.UserID.String()),
			slog.String("token_user_id", claims.UserID.String()),
		)
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is deactivated")
	}

	return s.issuePair(ctx, user, deviceInfo)
}

// Logout revokes the session for the given refresh token. Logout is
// idempotent: an unknown, expired or already-revoked token still succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// LogoutAll revokes every live session for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("user_id", userID.String()),
		slog.Int64("sessions", n),
	)
	return nil
}

// ChangePassword verifies the current password, stores the new digest and
// revokes every live session so stolen refresh tokens die with the old
// password.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, "hash password")
	}

	user.PasswordHash = string(hash)
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", userID.String()),
	)
	s.events.UserPasswordChanged(ctx, userID.String())
	return nil
}

// ValidateAccessToken exposes access token validation for the HTTP
// middleware.
func (s *AuthService) ValidateAccessToken(token string) (*auth.Claims, error) {
	return s.tokens.ValidateAccessToken(token)
}

// PruneExpiredSessions deletes refresh sessions past their expiry and
// returns how many were removed.
func (s *AuthService) PruneExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired sessions pruned", slog.Int64("sessions", n))
	}
	return n, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User, deviceInfo string) (*domain.TokenPair, error) {
	pair, err := s.tokens.GeneratePair(user)
	if err != nil {
		return nil, apperrors.Wrap(err, "generate tokens")
	}

	session := &domain.RefreshSession{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  auth.HashToken(pair.RefreshToken),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().UTC().Add(s.tokens.RefreshTTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return pair, nil
}
