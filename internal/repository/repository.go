package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*domain.User, error)
	Count(ctx context.Context) (int64, error)
}

// RefreshSessionRepository defines the interface for refresh session storage.
// Sessions are keyed by the SHA-256 digest of the raw token.
type RefreshSessionRepository interface {
	Create(ctx context.Context, session *domain.RefreshSession) error
	GetValidByHash(ctx context.Context, tokenHash string) (*domain.RefreshSession, error)
	// Consume atomically revokes the session identified by tokenHash if it is
	// still live, returning the revoked session. Concurrent callers race on a
	// single conditional update so at most one wins.
	Consume(ctx context.Context, tokenHash string) (*domain.RefreshSession, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
