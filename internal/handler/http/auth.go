package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/internal/service"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
	"github.com/spartak030506-hash/shop-backend/pkg/middleware"
)

// AuthService is the surface of the auth service the handlers need.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput, deviceInfo string) (*domain.User, *domain.TokenPair, error)
	Login(ctx context.Context, email, password, deviceInfo string) (*domain.User, *domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken, deviceInfo string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
}

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type authResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bindJSON(w, r, &req) {
		return
	}

	user, pair, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}, r.UserAgent())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: user, Tokens: pair})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bindJSON(w, r, &req) {
		return
	}

	user, pair, err := h.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, Tokens: pair})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bindJSON(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken, r.UserAgent())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout. Always 204 on a well-formed
// request: revoking an unknown token is a success.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bindJSON(w, r, &req) {
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /api/v1/auth/logout-all. Requires authentication.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.auth.LogoutAll(r.Context(), userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/users/me/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindJSON(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "password updated, all sessions revoked",
	})
}

// authenticatedUserID pulls the user ID the auth middleware put in the
// context. A missing or malformed value means the middleware did not run;
// treat it as unauthorized rather than panic.
func authenticatedUserID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		writeError(w, r, logger, apperrors.Unauthorized("authentication required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, logger, apperrors.Unauthorized("authentication required"))
		return uuid.Nil, false
	}
	return id, true
}
