package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-rbac-auth/internal/logger"
	"go-rbac-auth/internal/model"
)

type sessionValidator interface {
	Validate(ctx context.Context, token string) (model.AuthSession, error)
}

type authorizer interface {
	Authorize(ctx context.Context, user model.User, req model.Requirement) error
}

type contextKey string

const authSessionContextKey contextKey = "auth_session"

type AuthMiddleware struct {
	sessions   sessionValidator
	authorizer authorizer
}

func NewAuthMiddleware(sessions sessionValidator, authorizer authorizer) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, authorizer: authorizer}
}

// RequireAuth resolves the bearer token to a session. Every failure gets the same
// response so callers cannot tell an expired token from a revoked one.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthenticated.")
			return
		}

		session, err := m.sessions.Validate(r.Context(), token)
		if err != nil {
			if !isAuthFailure(err) {
				logger.FromContext(r.Context()).Error("validate session", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthenticated.")
			return
		}

		ctx := context.WithValue(r.Context(), authSessionContextKey, session)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("user_id", session.User.ID))
		if info := infoFromContext(ctx); info != nil {
			info.mu.Lock()
			info.userID = session.User.ID
			info.mu.Unlock()
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles admits users holding any of roles.
func (m *AuthMiddleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return m.require(model.Requirement{Roles: roles})
}

// RequirePermissions admits users holding any of permissions, directly or through a role.
func (m *AuthMiddleware) RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return m.require(model.Requirement{Permissions: permissions})
}

func (m *AuthMiddleware) require(req model.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := AuthFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthenticated.")
				return
			}

			err := m.authorizer.Authorize(r.Context(), session.User, req)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, model.ErrForbidden):
				writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action.")
			default:
				logger.FromContext(r.Context()).Error("authorize request", "error", err)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
			}
		})
	}
}

func AuthFromContext(ctx context.Context) (model.AuthSession, bool) {
	session, ok := ctx.Value(authSessionContextKey).(model.AuthSession)
	return session, ok
}

// WithAuth returns ctx carrying session, as RequireAuth would store it.
func WithAuth(ctx context.Context, session model.AuthSession) context.Context {
	return context.WithValue(ctx, authSessionContextKey, session)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func isAuthFailure(err error) bool {
	return errors.Is(err, model.ErrInvalidToken) ||
		errors.Is(err, model.ErrTokenExpired) ||
		errors.Is(err, model.ErrTokenRevoked) ||
		errors.Is(err, model.ErrUserInactive)
}
