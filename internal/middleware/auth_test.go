package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

type stubValidator struct {
	principal *model.Principal
	err       error
}

func (s stubValidator) ValidateAccess(context.Context, string) (*model.Principal, error) {
	return s.principal, s.err
}

func okHandler(seen **model.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFromContext(r.Context()); ok {
			*seen = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{})

	for _, header := range []string{"", "Basic abc", "Bearer", "token-without-scheme"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/profile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		m.RequireAuth(okHandler(new(*model.Principal))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{err: errors.New("bad token")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/profile", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()

	m.RequireAuth(okHandler(new(*model.Principal))).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestRequireAuthInjectsPrincipal(t *testing.T) {
	principal := &model.Principal{
		UserID: "user-1",
		Email:  "alice@example.com",
		Roles:  []model.Role{model.RoleCustomer},
	}
	m := NewAuthMiddleware(stubValidator{principal: principal})

	var seen *model.Principal
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/profile", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	m.RequireAuth(okHandler(&seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user-1", seen.UserID)
}

func TestRequireRoles(t *testing.T) {
	principal := &model.Principal{
		UserID: "user-1",
		Roles:  []model.Role{model.RoleCustomer},
	}
	m := NewAuthMiddleware(stubValidator{principal: principal})

	adminOnly := m.RequireAuth(m.RequireRoles(model.RoleAdmin)(okHandler(new(*model.Principal))))
	customerOK := m.RequireAuth(m.RequireRoles(model.RoleCustomer, model.RoleAdmin)(okHandler(new(*model.Principal))))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer valid-token")

	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	customerOK.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesWithoutAuth(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{})

	// RequireRoles without RequireAuth upstream must refuse, not panic.
	handler := m.RequireRoles(model.RoleAdmin)(okHandler(new(*model.Principal)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
