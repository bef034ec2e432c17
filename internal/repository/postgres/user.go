package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

// DB is the narrow query surface the repositories need. Both *pgxpool.Pool
// and pgxmock satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// emailUniqueConstraint is the name of the partial unique index on
// lower(email) in the users migration.
const emailUniqueConstraint = "users_email_unique_idx"

// UserRepository implements repository.UserRepository backed by PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, is_active, is_verified, is_deleted, created_at, updated_at`

// Create inserts a new user. A duplicate email maps to ErrAlreadyExists;
// any other constraint violation propagates unchanged.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Phone,
		user.Role, user.IsActive, user.IsVerified,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isEmailConflict(err) {
			return apperrors.AlreadyExists("user", "email", user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID. Soft-deleted users are indistinguishable
// from absent ones.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_deleted = FALSE`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id.String())
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND is_deleted = FALSE`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", email)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// Update persists mutable profile fields for an existing user.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    phone = $6, role = $7, is_active = $8, is_verified = $9, updated_at = $10
		WHERE id = $1 AND is_deleted = FALSE`

	user.UpdatedAt = time.Now().UTC()

	tag, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Phone,
		user.Role, user.IsActive, user.IsVerified,
		user.UpdatedAt,
	)
	if err != nil {
		if isEmailConflict(err) {
			return apperrors.AlreadyExists("user", "email", user.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", user.ID.String())
	}
	return nil
}

// SoftDelete marks a user deleted without removing the row.
func (r *UserRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_deleted = TRUE, is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", id.String())
	}
	return nil
}

// List returns a page of non-deleted users ordered by creation time.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_deleted = FALSE ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// Count returns the number of non-deleted users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_deleted = FALSE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// isEmailConflict reports whether err is a unique violation on the email
// index specifically. Violations of other constraints are not an email
// conflict and must surface as-is.
func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == emailUniqueConstraint
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Phone,
		&user.Role, &user.IsActive, &user.IsVerified, &user.IsDeleted,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
