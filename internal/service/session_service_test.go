package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
	"go-rbac-auth/internal/service/servicetest"
)

func TestNewSessionServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	store := servicetest.NewStore()
	_, err := service.NewSessionService(store.Sessions(), store.Users(), "too-short")
	require.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")

	issued := h.issue(t, user)
	require.NotEmpty(t, issued.AccessToken)
	require.True(t, strings.HasPrefix(issued.RefreshToken, issued.SessionID+"."))
	require.Equal(t, h.clock.Now().Add(service.DefaultAccessTTL), issued.ExpiresAt)

	stored, err := h.store.Sessions().FindByID(ctx, issued.SessionID)
	require.NoError(t, err)
	require.NotEqual(t, issued.AccessToken, stored.TokenHash)
	require.NotContains(t, issued.RefreshToken, stored.RefreshHash)
	require.Len(t, stored.TokenHash, 64)

	auth, err := h.sessions.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, auth.User.ID)
	require.Equal(t, issued.SessionID, auth.SessionID)

	another := h.issue(t, user)
	require.NotEqual(t, issued.SessionID, another.SessionID)
	_, err = h.sessions.Validate(ctx, issued.AccessToken)
	require.NoError(t, err, "sessions on several devices coexist")
}

func TestValidateRejectsForgedTokens(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	issued := h.issue(t, user)

	other := servicetest.NewStore()
	foreign, err := service.NewSessionService(other.Sessions(), other.Users(), "another-secret-0123456789-abcdefghij")
	require.NoError(t, err)
	otherUser := model.User{ID: user.ID, Status: model.UserStatusActive}
	require.NoError(t, other.Users().Create(ctx, otherUser, nil, nil))
	foreignToken, err := foreign.Issue(ctx, otherUser, model.ClientInfo{})
	require.NoError(t, err)

	parts := strings.Split(issued.AccessToken, ".")
	otherParts := strings.Split(h.issue(t, user).AccessToken, ".")

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"tampered":       parts[0] + "." + parts[1] + "." + otherParts[2],
		"refresh token":  issued.RefreshToken,
		"foreign secret": foreignToken.AccessToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.sessions.Validate(ctx, token)
			require.ErrorIs(t, err, model.ErrInvalidToken)
		})
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	keep := h.issue(t, user)
	drop := h.issue(t, user)

	require.NoError(t, h.sessions.Revoke(ctx, drop.SessionID))
	require.NoError(t, h.sessions.Revoke(ctx, drop.SessionID), "revoking twice is harmless")

	_, err := h.sessions.Validate(ctx, drop.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)

	_, err = h.sessions.Validate(ctx, keep.AccessToken)
	require.NoError(t, err)

	require.ErrorIs(t, h.sessions.Revoke(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ"), model.ErrSessionNotFound)
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	ada := h.register(t, "ada@example.com", "secret1")
	bob := h.register(t, "bob@example.com", "secret1")

	tokens := []model.IssuedSession{h.issue(t, ada), h.issue(t, ada), h.issue(t, ada)}
	bobs := h.issue(t, bob)

	n, err := h.sessions.RevokeAll(ctx, ada.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	for _, issued := range tokens {
		_, err := h.sessions.Validate(ctx, issued.AccessToken)
		require.ErrorIs(t, err, model.ErrTokenRevoked)
	}

	_, err = h.sessions.Validate(ctx, bobs.AccessToken)
	require.NoError(t, err)
}

func TestValidateExpiry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	issued := h.issue(t, user)

	h.clock.Advance(service.DefaultAccessTTL - time.Second)
	_, err := h.sessions.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.sessions.Validate(ctx, issued.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenExpired)
	require.Equal(t, 1, h.store.SessionCount(), "refresh window is still open")

	h.clock.Advance(service.DefaultRefreshTTL)
	_, err = h.sessions.Validate(ctx, issued.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenExpired)
	require.Equal(t, 0, h.store.SessionCount(), "spent session is reaped lazily")
}

func TestValidateRejectsInactiveOrDeletedUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	issued := h.issue(t, user)

	status := model.UserStatusInactive
	_, err := h.store.Users().Update(ctx, user.ID, model.UserPatch{Status: &status}, h.clock.Now())
	require.NoError(t, err)

	_, err = h.sessions.Validate(ctx, issued.AccessToken)
	require.ErrorIs(t, err, model.ErrUserInactive)
}

func TestIssueFailsWhenSessionCannotBeStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	user := h.register(t, "ada@example.com", "secret1")
	h.store.SessionCreateErr = servicetest.ErrStoreDown

	issued, err := h.sessions.Issue(context.Background(), user, model.ClientInfo{})
	require.ErrorIs(t, err, servicetest.ErrStoreDown)
	require.Empty(t, issued.AccessToken)
	require.Empty(t, issued.RefreshToken)
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	first := h.issue(t, user)

	second, err := h.sessions.Refresh(ctx, first.RefreshToken, model.ClientInfo{})
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	_, err = h.sessions.Validate(ctx, second.AccessToken)
	require.NoError(t, err)

	_, err = h.sessions.Validate(ctx, first.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)

	_, err = h.sessions.Refresh(ctx, first.RefreshToken, model.ClientInfo{})
	require.ErrorIs(t, err, model.ErrTokenRevoked, "a refresh token works once")

	t.Run("revoked session cannot refresh", func(t *testing.T) {
		require.NoError(t, h.sessions.Revoke(ctx, second.SessionID))
		_, err := h.sessions.Refresh(ctx, second.RefreshToken, model.ClientInfo{})
		require.ErrorIs(t, err, model.ErrTokenRevoked)
	})

	t.Run("wrong secret", func(t *testing.T) {
		third := h.issue(t, user)
		_, err := h.sessions.Refresh(ctx, third.SessionID+".bogus", model.ClientInfo{})
		require.ErrorIs(t, err, model.ErrInvalidToken)

		_, err = h.sessions.Refresh(ctx, third.AccessToken, model.ClientInfo{})
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		fourth := h.issue(t, user)
		h.clock.Advance(service.DefaultRefreshTTL)
		_, err := h.sessions.Refresh(ctx, fourth.RefreshToken, model.ClientInfo{})
		require.ErrorIs(t, err, model.ErrTokenExpired)
	})
}

func TestConcurrentRefreshYieldsOneSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	user := h.register(t, "ada@example.com", "secret1")
	issued := h.issue(t, user)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.sessions.Refresh(context.Background(), issued.RefreshToken, model.ClientInfo{})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, model.ErrTokenRevoked)
	}
	require.Equal(t, 1, succeeded)
}

func TestReapSessions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	user := h.register(t, "ada@example.com", "secret1")
	revoked := h.issue(t, user)
	h.issue(t, user)
	require.NoError(t, h.sessions.Revoke(ctx, revoked.SessionID))

	h.clock.Advance(service.DefaultAccessTTL)
	n, err := h.sessions.Reap(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	h.clock.Advance(service.DefaultRefreshTTL)
	n, err = h.sessions.Reap(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 0, h.store.SessionCount())
}
