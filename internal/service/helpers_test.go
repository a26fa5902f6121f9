package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
	"go-rbac-auth/internal/service/servicetest"
)

const testSecret = "test-secret-0123456789-abcdefghijkl"

type harness struct {
	store    *servicetest.Store
	clock    *servicetest.Clock
	notifier *servicetest.Notifier

	credentials *service.CredentialService
	sessions    *service.SessionService
	rbac        *service.RBACService
	resets      *service.ResetService
	authorizer  *service.Authorizer
	auth        *service.AuthService
}

func newHarness(t *testing.T, extra ...service.Option) *harness {
	t.Helper()

	h := &harness{
		store:    servicetest.NewStore(),
		clock:    servicetest.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		notifier: &servicetest.Notifier{},
	}
	h.store.SeedRBAC()

	opts := append([]service.Option{
		service.WithClock(h.clock.Now),
		service.WithBcryptCost(bcrypt.MinCost),
	}, extra...)

	var err error
	h.sessions, err = service.NewSessionService(h.store.Sessions(), h.store.Users(), testSecret, opts...)
	require.NoError(t, err)

	h.credentials = service.NewCredentialService(h.store.Users(), h.store.Roles(), h.sessions, opts...)
	h.rbac = service.NewRBACService(h.store.Roles(), h.store.Permissions(), h.store.Users(), opts...)
	h.resets = service.NewResetService(h.store.Resets(), h.credentials, h.sessions, h.notifier, opts...)
	h.authorizer = service.NewAuthorizer(h.rbac, opts...)
	h.auth = service.NewAuthService(h.credentials, h.sessions, h.rbac, opts...)

	return h
}

func (h *harness) register(t *testing.T, email string, password string) model.User {
	t.Helper()

	user, err := h.credentials.Register(context.Background(), model.RegisterInput{
		Name:     "User " + email,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user
}

func (h *harness) issue(t *testing.T, user model.User) model.IssuedSession {
	t.Helper()

	issued, err := h.sessions.Issue(context.Background(), user, model.ClientInfo{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return issued
}

func permissionNames(perms []model.Permission) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}
