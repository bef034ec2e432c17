package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spartak030506-hash/shop-backend/internal/auth"
	"github.com/spartak030506-hash/shop-backend/internal/domain"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(
		"access-secret-for-tests-only-1234567",
		"refresh-secret-for-tests-only-123456",
		15*time.Minute, 7*24*time.Hour, "shop-backend",
	)
}

func newTestAuthService(users *mockUserRepository, sessions *mockSessionRepository, events *mockEventProducer) *AuthService {
	return NewAuthService(users, sessions, newTestTokenManager(), events, discardLogger())
}

func activeUser(t *testing.T, password string) *domain.User {
	return &domain.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		PasswordHash: hashForTest(t, password),
		FirstName:    "Alice",
		Role:         domain.RoleCustomer,
		IsActive:     true,
	}
}

func TestAuthService_Register(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "alice@example.com" &&
			u.Role == domain.RoleCustomer &&
			u.IsActive &&
			u.PasswordHash != "" &&
			u.PasswordHash != "s3cretpass"
	})).Return(nil)
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.RefreshSession) bool {
		return s.DeviceInfo == "test-agent" && len(s.TokenHash) == 64
	})).Return(nil)
	events.On("UserRegistered", mock.Anything, mock.Anything).Return()

	user, pair, err := svc.Register(context.Background(), RegisterInput{
		Email:     "alice@example.com",
		Password:  "s3cretpass",
		FirstName: "Alice",
	}, "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	users.AssertExpectations(t)
	sessions.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	users.On("Create", mock.Anything, mock.Anything).
		Return(apperrors.AlreadyExists("user", "email", "alice@example.com"))

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "s3cretpass",
	}, "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	events.AssertNotCalled(t, "UserRegistered", mock.Anything, mock.Anything)
	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Login(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.RefreshSession) bool {
		return s.UserID == user.ID &&
			s.DeviceInfo == "test-agent" &&
			len(s.TokenHash) == 64 &&
			s.ExpiresAt.After(time.Now())
	})).Return(nil)

	gotUser, pair, err := svc.Login(context.Background(), user.Email, "s3cretpass", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	sessions.AssertExpectations(t)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	users.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(nil, apperrors.NotFound("user", "ghost@example.com"))

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	_, _, err := svc.Login(context.Background(), user.Email, "wrong", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Login_Deactivated(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")
	user.IsActive = false

	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	_, _, err := svc.Login(context.Background(), user.Email, "s3cretpass", "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

// The password check runs before the activity check: a wrong password
// against a deactivated account must not reveal the deactivation.
func TestAuthService_Login_DeactivatedWrongPassword(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")
	user.IsActive = false

	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	_, _, err := svc.Login(context.Background(), user.Email, "wrong", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthService_Refresh(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	tm := newTestTokenManager()
	refreshToken, err := tm.GenerateRefreshToken(user)
	require.NoError(t, err)
	hash := auth.HashToken(refreshToken)

	sessions.On("Consume", mock.Anything, hash).Return(&domain.RefreshSession{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.RefreshSession) bool {
		return s.UserID == user.ID && s.TokenHash != hash
	})).Return(nil)

	pair, err := svc.Refresh(context.Background(), refreshToken, "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, refreshToken, pair.RefreshToken)
	sessions.AssertExpectations(t)
}

func TestAuthService_Refresh_Replayed(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	refreshToken, err := newTestTokenManager().GenerateRefreshToken(user)
	require.NoError(t, err)

	sessions.On("Consume", mock.Anything, auth.HashToken(refreshToken)).
		Return(nil, apperrors.NotFound("refresh session", ""))

	_, err = svc.Refresh(context.Background(), refreshToken, "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	_, err := svc.Refresh(context.Background(), "not-a-jwt", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	sessions.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestAuthService_Refresh_AccessTokenRejected(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	accessToken, err := newTestTokenManager().GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), accessToken, "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	sessions.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestAuthService_Refresh_SubjectMismatch(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")

	refreshToken, err := newTestTokenManager().GenerateRefreshToken(user)
	require.NoError(t, err)
	hash := auth.HashToken(refreshToken)

	sessions.On("Consume", mock.Anything, hash).Return(&domain.RefreshSession{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenHash: hash,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	_, err = svc.Refresh(context.Background(), refreshToken, "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthService_Refresh_DeactivatedUser(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "s3cretpass")
	user.IsActive = false

	refreshToken, err := newTestTokenManager().GenerateRefreshToken(user)
	require.NoError(t, err)
	hash := auth.HashToken(refreshToken)

	sessions.On("Consume", mock.Anything, hash).Return(&domain.RefreshSession{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err = svc.Refresh(context.Background(), refreshToken, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAuthService_Logout_Idempotent(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	sessions.On("Revoke", mock.Anything, mock.Anything).Return(nil)

	assert.NoError(t, svc.Logout(context.Background(), "some-refresh-token"))
	assert.NoError(t, svc.Logout(context.Background(), "some-refresh-token"))
	assert.NoError(t, svc.Logout(context.Background(), "garbage-that-never-was-a-token"))
}

func TestAuthService_LogoutAll(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	userID := uuid.New()

	sessions.On("RevokeAllForUser", mock.Anything, userID).Return(int64(2), nil)

	assert.NoError(t, svc.LogoutAll(context.Background(), userID))
	sessions.AssertExpectations(t)
}

func TestAuthService_ChangePassword(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "old-password")

	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	users.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == user.ID && u.PasswordHash != ""
	})).Return(nil)
	sessions.On("RevokeAllForUser", mock.Anything, user.ID).Return(int64(1), nil)
	events.On("UserPasswordChanged", mock.Anything, user.ID.String()).Return()

	err := svc.ChangePassword(context.Background(), user.ID, "old-password", "new-password")
	require.NoError(t, err)
	sessions.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestAuthService_ChangePassword_WrongCurrent(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)
	user := activeUser(t, "old-password")

	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	err := svc.ChangePassword(context.Background(), user.ID, "not-the-password", "new-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	sessions.AssertNotCalled(t, "RevokeAllForUser", mock.Anything, mock.Anything)
}

func TestAuthService_PruneExpiredSessions(t *testing.T) {
	users := new(mockUserRepository)
	sessions := new(mockSessionRepository)
	events := new(mockEventProducer)
	svc := newTestAuthService(users, sessions, events)

	sessions.On("DeleteExpired", mock.Anything).Return(int64(5), nil)

	n, err := svc.PruneExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
