//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/crypto/bcrypt"

	"go-rbac-auth/internal/config"
	"go-rbac-auth/internal/database"
	"go-rbac-auth/internal/handler"
	"go-rbac-auth/internal/metrics"
	"go-rbac-auth/internal/middleware"
	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/repository"
	"go-rbac-auth/internal/router"
	"go-rbac-auth/internal/service"
	"go-rbac-auth/internal/service/servicetest"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

// startPostgres boots a disposable database with the schema and seed data applied.
func startPostgres(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	_ = provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("rbac_test"),
		postgres.WithUsername("rbac"),
		postgres.WithPassword("rbac_test_password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, dsn, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

type stack struct {
	db          *database.DB
	server      *httptest.Server
	notifier    *servicetest.Notifier
	sessions    *service.SessionService
	resets      *service.ResetService
	credentials *service.CredentialService
}

func newStack(t *testing.T, opts ...service.Option) *stack {
	t.Helper()

	db := startPostgres(t)
	pool := db.Pool

	users := repository.NewUserRepository(pool)
	roles := repository.NewRoleRepository(pool)
	permissions := repository.NewPermissionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	opts = append([]service.Option{
		service.WithBcryptCost(bcrypt.MinCost),
		service.WithDebug(true),
	}, opts...)

	sessions, err := service.NewSessionService(sessionRepo, users, "integration-secret-0123456789-abcdef", opts...)
	require.NoError(t, err)
	credentials := service.NewCredentialService(users, roles, sessions, opts...)
	rbac := service.NewRBACService(roles, permissions, users, opts...)
	notifier := &servicetest.Notifier{}
	resets := service.NewResetService(resetRepo, credentials, sessions, notifier, opts...)
	auth := service.NewAuthService(credentials, sessions, rbac, opts...)
	t.Cleanup(resets.Wait)

	created, err := credentials.SeedAdmin(context.Background(), "Admin", adminEmail, adminPassword)
	require.NoError(t, err)
	require.True(t, created)

	cfg := &config.Config{CORSOrigins: []string{"*"}, RequestTimeout: 10 * time.Second}
	h := router.New(cfg,
		middleware.NewAuthMiddleware(sessions, service.NewAuthorizer(rbac, opts...)),
		middleware.NewRateLimitMiddleware(0, 1000),
		metrics.New(prometheus.NewRegistry()),
		router.Handlers{
			Auth:       handler.NewAuthHandler(auth, credentials),
			Password:   handler.NewPasswordHandler(resets),
			Role:       handler.NewRoleHandler(rbac),
			Permission: handler.NewPermissionHandler(rbac),
			User:       handler.NewUserHandler(credentials, rbac),
			Example:    handler.NewExampleHandler(),
			Health:     handler.NewHealthHandler(db),
			Docs:       handler.NewDocsHandler(),
		})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &stack{db: db, server: server, notifier: notifier, sessions: sessions, resets: resets, credentials: credentials}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

func (s *stack) do(t *testing.T, method string, path string, token string, body any) (int, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *stack) login(t *testing.T, email string, password string) model.LoginResult {
	t.Helper()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, "login %s: %+v", email, env.Error)

	var result model.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result
}

func (s *stack) register(t *testing.T, email string, password string) {
	t.Helper()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "User", "email": email, "password": password, "password_confirmation": password,
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %+v", email, env.Error)
}

func unmarshal[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
