package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

// RefreshSessionRepository implements repository.RefreshSessionRepository
// backed by PostgreSQL.
type RefreshSessionRepository struct {
	db DB
}

// NewRefreshSessionRepository creates a new PostgreSQL refresh session repository.
func NewRefreshSessionRepository(db DB) *RefreshSessionRepository {
	return &RefreshSessionRepository{db: db}
}

const sessionColumns = `id, user_id, token_hash, device_info, expires_at, revoked_at, created_at`

// Create stores a new refresh session record.
func (r *RefreshSessionRepository) Create(ctx context.Context, session *domain.RefreshSession) error {
	query := `
		INSERT INTO refresh_sessions (id, user_id, token_hash, device_info, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	session.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.TokenHash,
		session.DeviceInfo, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

// GetValidByHash returns the session for the given token digest if it is
// neither revoked nor expired. Expiry is checked at lookup time rather than
// by a background sweeper.
func (r *RefreshSessionRepository) GetValidByHash(ctx context.Context, tokenHash string) (*domain.RefreshSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()`

	session, err := scanSession(r.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refresh session", "")
		}
		return nil, fmt.Errorf("get refresh session: %w", err)
	}
	return session, nil
}

// Consume revokes the live session matching tokenHash and returns it. The
// condition and update happen in one statement, so of any number of
// concurrent redemption attempts exactly one observes a row.
func (r *RefreshSessionRepository) Consume(ctx context.Context, tokenHash string) (*domain.RefreshSession, error) {
	query := `
		UPDATE refresh_sessions
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refresh session", "")
		}
		return nil, fmt.Errorf("consume refresh session: %w", err)
	}
	return session, nil
}

// Revoke marks the session for the given token digest revoked. Revoking an
// already-revoked or unknown session is not an error.
func (r *RefreshSessionRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `UPDATE refresh_sessions SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`

	if _, err := r.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live session belonging to the user and
// returns how many were affected.
func (r *RefreshSessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE refresh_sessions SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`

	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes session rows whose expiry has passed. Run
// periodically to keep the table from growing without bound.
func (r *RefreshSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row rowScanner) (*domain.RefreshSession, error) {
	var s domain.RefreshSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.DeviceInfo,
		&s.ExpiresAt, &s.RevokedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
