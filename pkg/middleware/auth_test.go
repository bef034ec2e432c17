package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingHeader(t *testing.T) {
	h := Auth(func(token string) (*Claims, error) {
		t.Fatal("validator should not be called")
		return nil, nil
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BadScheme(t *testing.T) {
	h := Auth(func(token string) (*Claims, error) {
		t.Fatal("validator should not be called")
		return nil, nil
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	h := Auth(func(token string) (*Claims, error) {
		return nil, fmt.Errorf("signature invalid")
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InjectsClaims(t *testing.T) {
	var gotUserID, gotRole string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := Auth(func(token string) (*Claims, error) {
		assert.Equal(t, "good-token", token)
		return &Claims{UserID: "u-1", Role: "admin"}, nil
	})(inner)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", gotUserID)
	assert.Equal(t, "admin", gotRole)
}

func TestRequireRole_Allowed(t *testing.T) {
	h := Auth(func(token string) (*Claims, error) {
		return &Claims{UserID: "u-1", Role: "admin"}, nil
	})(RequireRole("admin")(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	h := Auth(func(token string) (*Claims, error) {
		return &Claims{UserID: "u-1", Role: "customer"}, nil
	})(RequireRole("admin")(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
