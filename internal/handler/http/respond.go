package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
	"github.com/spartak030506-hash/shop-backend/pkg/validator"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps service errors to HTTP responses. Validation failures get
// 422 with a per-field breakdown; AppErrors carry their own code and status;
// anything else is a generic 500 with the detail kept server-side.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, errorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "an internal error occurred",
		})
		return
	}

	writeJSON(w, status, errorResponse{
		Code:    http.StatusText(status),
		Message: err.Error(),
	})
}

// bindJSON decodes and validates the request body into dst, writing the
// appropriate error response on failure. Returns true on success.
func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		})
		return false
	}

	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    "INVALID_BODY",
		Message: "request body is not valid JSON",
	})
	return false
}
