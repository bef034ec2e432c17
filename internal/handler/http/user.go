package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/internal/service"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

// UserService is the surface of the user service the handlers need.
type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, input service.UpdateProfileInput) (*domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, pageSize int) ([]*domain.User, int64, error)
}

// UserHandler serves the profile and administrative user endpoints.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,e164"`
}

type listUsersResponse struct {
	Users    []*domain.User `json:"users"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// GetMe handles GET /api/v1/users/me.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /api/v1/users/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !bindJSON(w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// DeleteMe handles DELETE /api/v1/users/me.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/users. Admin only.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	users, total, err := h.users.List(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	writeJSON(w, http.StatusOK, listUsersResponse{
		Users:    users,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// GetByID handles GET /api/v1/users/{id}. Admin only.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, apperrors.InvalidInput("id must be a valid UUID"))
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Delete handles DELETE /api/v1/users/{id}. Admin only. Admins delete their
// own account through DELETE /users/me, not here.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, apperrors.InvalidInput("id must be a valid UUID"))
		return
	}

	callerID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}
	if callerID == id {
		writeError(w, r, h.logger, apperrors.Forbidden("cannot delete your own account via the admin endpoint"))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
