package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-rbac-auth/internal/model"
)

type stubSessions struct {
	sessions map[string]model.AuthSession
	err      error
}

func (s stubSessions) Validate(_ context.Context, token string) (model.AuthSession, error) {
	if s.err != nil {
		return model.AuthSession{}, s.err
	}
	session, ok := s.sessions[token]
	if !ok {
		return model.AuthSession{}, model.ErrInvalidToken
	}
	return session, nil
}

type stubAuthorizer struct {
	roles       map[string][]string
	permissions map[string][]string
	err         error
}

func (a stubAuthorizer) Authorize(_ context.Context, user model.User, req model.Requirement) error {
	if a.err != nil {
		return a.err
	}
	for _, want := range req.Roles {
		for _, have := range a.roles[user.ID] {
			if want == have {
				return nil
			}
		}
	}
	for _, want := range req.Permissions {
		for _, have := range a.permissions[user.ID] {
			if want == have {
				return nil
			}
		}
	}
	return model.ErrForbidden
}

func newTestAuth(authz stubAuthorizer) *AuthMiddleware {
	sessions := stubSessions{sessions: map[string]model.AuthSession{
		"admin-token":  {SessionID: "s1", User: model.User{ID: "u-admin"}, ExpiresAt: time.Now().Add(time.Hour)},
		"viewer-token": {SessionID: "s2", User: model.User{ID: "u-viewer"}, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	return NewAuthMiddleware(sessions, authz)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.APIError {
	t.Helper()
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(stubAuthorizer{})
	var seen model.AuthSession
	handler := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := AuthFromContext(r.Context())
		require.True(t, ok)
		seen = session
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic admin-token", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer   ", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer admin-token", status: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer admin-token", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, tt.status, rec.Code, tt.name)
		if tt.status == http.StatusUnauthorized {
			apiErr := decodeError(t, rec)
			assert.Equal(t, "UNAUTHORIZED", apiErr.Code, tt.name)
			assert.Equal(t, "Unauthenticated.", apiErr.Message, tt.name)
		}
	}

	assert.Equal(t, "u-admin", seen.User.ID)
}

func TestRequireAuth_ValidatorFailureIsGeneric(t *testing.T) {
	t.Parallel()

	for _, err := range []error{model.ErrTokenExpired, model.ErrTokenRevoked, model.ErrUserInactive, errors.New("db down")} {
		auth := NewAuthMiddleware(stubSessions{err: err}, stubAuthorizer{})
		handler := auth.RequireAuth(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthenticated.", decodeError(t, rec).Message)
	}
}

func TestRequireRolesAndPermissions(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(stubAuthorizer{
		roles:       map[string][]string{"u-admin": {"admin"}, "u-viewer": {"viewer"}},
		permissions: map[string][]string{"u-viewer": {"view reports"}},
	})

	gated := func(mw func(http.Handler) http.Handler) http.Handler {
		return auth.RequireAuth(mw(okHandler()))
	}

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		status  int
	}{
		{name: "admin role allowed", handler: gated(auth.RequireRoles("admin")), token: "admin-token", status: http.StatusOK},
		{name: "viewer denied admin", handler: gated(auth.RequireRoles("admin")), token: "viewer-token", status: http.StatusForbidden},
		{name: "any of roles", handler: gated(auth.RequireRoles("editor", "viewer")), token: "viewer-token", status: http.StatusOK},
		{name: "permission allowed", handler: gated(auth.RequirePermissions("view reports")), token: "viewer-token", status: http.StatusOK},
		{name: "permission denied", handler: gated(auth.RequirePermissions("edit articles")), token: "viewer-token", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tt.token)
		rec := httptest.NewRecorder()
		tt.handler.ServeHTTP(rec, req)

		assert.Equal(t, tt.status, rec.Code, tt.name)
		if tt.status == http.StatusForbidden {
			assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code, tt.name)
		}
	}
}

func TestRequireRoles_WithoutAuth(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(stubAuthorizer{})
	rec := httptest.NewRecorder()
	auth.RequireRoles("admin")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoles_AuthorizerError(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(stubAuthorizer{err: errors.New("db down")})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithAuth(req.Context(), model.AuthSession{User: model.User{ID: "u-admin"}}))
	rec := httptest.NewRecorder()
	auth.RequireRoles("admin")(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
