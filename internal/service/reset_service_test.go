package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
	"go-rbac-auth/internal/service/servicetest"
)

func sha(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TestRequestResetDoesNotRevealAccounts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")

	known, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	unknown, err := h.resets.RequestReset(ctx, "nobody@example.com")
	require.NoError(t, err)

	require.Equal(t, unknown, known)
	require.Equal(t, model.ResetRequestedMessage, known.Message)
	require.Empty(t, known.DebugToken)

	h.resets.Wait()
	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "ada@example.com", sent[0].To)
	require.Equal(t, service.DefaultResetWindow, sent[0].ExpiresIn)
	require.Equal(t, 1, h.store.ResetCount())
}

func TestRequestResetSurvivesNotifierFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	h.notifier.Err = servicetest.ErrStoreDown
	h.register(t, "ada@example.com", "secret1")

	res, err := h.resets.RequestReset(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, res.DebugToken)

	h.resets.Wait()
	require.Len(t, h.notifier.Sent(), 1)
	require.Equal(t, 1, h.store.ResetCount())
}

func TestResetLinkCarriesToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true), service.WithResetURL("https://app.example.com/reset"))
	h.register(t, "ada@example.com", "secret1")

	res, err := h.resets.RequestReset(context.Background(), "ada@example.com")
	require.NoError(t, err)
	h.resets.Wait()

	link, err := url.Parse(h.notifier.Sent()[0].Link)
	require.NoError(t, err)
	require.Equal(t, "app.example.com", link.Host)
	require.Equal(t, res.DebugToken, link.Query().Get("token"))
	require.Equal(t, "ada@example.com", link.Query().Get("email"))
}

func TestConfirmReset(t *testing.T) {
	t.Parallel()

	t.Run("success changes the password, consumes the record and revokes sessions", func(t *testing.T) {
		h := newHarness(t, service.WithDebug(true))
		ctx := context.Background()
		user := h.register(t, "ada@example.com", "secret1")
		before := h.issue(t, user)

		res, err := h.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)

		err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
			Email: "ada@example.com", Token: res.DebugToken, NewPassword: "brandnew1",
		})
		require.NoError(t, err)

		_, err = h.sessions.Validate(ctx, before.AccessToken)
		require.ErrorIs(t, err, model.ErrTokenRevoked)
		require.Equal(t, 0, h.store.ResetCount())

		_, err = h.credentials.Authenticate(ctx, "ada@example.com", "brandnew1")
		require.NoError(t, err)

		err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
			Email: "ada@example.com", Token: res.DebugToken, NewPassword: "again1234",
		})
		require.ErrorIs(t, err, model.ErrResetTokenInvalid, "tokens are single use")
	})

	t.Run("wrong token keeps the record", func(t *testing.T) {
		h := newHarness(t, service.WithDebug(true))
		ctx := context.Background()
		h.register(t, "ada@example.com", "secret1")
		_, err := h.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)

		err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
			Email: "ada@example.com", Token: "guess", NewPassword: "brandnew1",
		})
		require.ErrorIs(t, err, model.ErrResetTokenInvalid)
		require.Equal(t, 1, h.store.ResetCount())
	})

	t.Run("no pending request", func(t *testing.T) {
		h := newHarness(t)

		err := h.resets.ConfirmReset(context.Background(), model.ResetConfirmInput{
			Email: "ada@example.com", Token: "anything", NewPassword: "brandnew1",
		})
		require.ErrorIs(t, err, model.ErrResetTokenInvalid)
	})

	t.Run("exactly at the window edge is still valid", func(t *testing.T) {
		h := newHarness(t, service.WithDebug(true))
		ctx := context.Background()
		h.register(t, "ada@example.com", "secret1")
		res, err := h.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)

		h.clock.Advance(service.DefaultResetWindow)

		err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
			Email: "ada@example.com", Token: res.DebugToken, NewPassword: "brandnew1",
		})
		require.NoError(t, err)
	})

	t.Run("expired token fails and deletes the record", func(t *testing.T) {
		h := newHarness(t, service.WithDebug(true))
		ctx := context.Background()
		h.register(t, "ada@example.com", "secret1")
		res, err := h.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)

		h.clock.Advance(service.DefaultResetWindow + time.Second)

		in := model.ResetConfirmInput{Email: "ada@example.com", Token: res.DebugToken, NewPassword: "brandnew1"}
		require.ErrorIs(t, h.resets.ConfirmReset(ctx, in), model.ErrResetTokenExpired)
		require.Equal(t, 0, h.store.ResetCount())
		require.ErrorIs(t, h.resets.ConfirmReset(ctx, in), model.ErrResetTokenInvalid)

		_, err = h.credentials.Authenticate(ctx, "ada@example.com", "secret1")
		require.NoError(t, err, "password is unchanged")
	})

	t.Run("user deleted after the request", func(t *testing.T) {
		h := newHarness(t, service.WithDebug(true))
		ctx := context.Background()
		user := h.register(t, "ada@example.com", "secret1")
		res, err := h.resets.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NoError(t, h.store.Users().Delete(ctx, user.ID))

		err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
			Email: "ada@example.com", Token: res.DebugToken, NewPassword: "brandnew1",
		})
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestNewerRequestReplacesOlderToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")

	first, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	second, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, h.store.ResetCount())

	err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{Email: "ada@example.com", Token: first.DebugToken, NewPassword: "brandnew1"})
	require.ErrorIs(t, err, model.ErrResetTokenInvalid)

	err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{Email: "ada@example.com", Token: second.DebugToken, NewPassword: "brandnew1"})
	require.NoError(t, err)
}

func TestConcurrentResetRequestsLeaveOneLiveToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")

	tokens := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.resets.RequestReset(ctx, "ada@example.com")
			tokens[i], errs[i] = res.DebugToken, err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, h.store.ResetCount())
	live, err := h.store.Resets().Find(ctx, "ada@example.com")
	require.NoError(t, err)

	winner, loser := tokens[0], tokens[1]
	if sha(winner) != live.TokenHash {
		winner, loser = loser, winner
	}
	require.Equal(t, live.TokenHash, sha(winner))

	err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{Email: "ada@example.com", Token: loser, NewPassword: "brandnew1"})
	require.ErrorIs(t, err, model.ErrResetTokenInvalid)

	err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{Email: "ada@example.com", Token: winner, NewPassword: "brandnew1"})
	require.NoError(t, err)
}

// pausingResets runs afterFind between a successful Find and whatever the caller does next.
type pausingResets struct {
	service.ResetStore
	afterFind func()
}

func (p *pausingResets) Find(ctx context.Context, email string) (model.PasswordReset, error) {
	rec, err := p.ResetStore.Find(ctx, email)
	if err == nil && p.afterFind != nil {
		p.afterFind()
	}
	return rec, err
}

func newPausedResetService(h *harness, afterFind func()) *service.ResetService {
	store := &pausingResets{ResetStore: h.store.Resets(), afterFind: afterFind}
	return service.NewResetService(store, h.credentials, h.sessions, h.notifier,
		service.WithClock(h.clock.Now), service.WithDebug(true))
}

func TestConcurrentConfirmationsConsumeTokenOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")
	res, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	// Both confirmations pass Find and the token check before either consumes the record.
	var arrived sync.WaitGroup
	arrived.Add(2)
	resets := newPausedResetService(h, func() {
		arrived.Done()
		arrived.Wait()
	})

	passwords := []string{"first-pass", "second-pass"}
	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, password := range passwords {
		i, password := i, password
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = resets.ConfirmReset(ctx, model.ResetConfirmInput{
				Email: "ada@example.com", Token: res.DebugToken, NewPassword: password,
			})
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "token accepted twice")
			winner = i
			continue
		}
		require.ErrorIs(t, err, model.ErrResetTokenInvalid)
	}
	require.NotEqual(t, -1, winner)

	_, err = h.credentials.Authenticate(ctx, "ada@example.com", passwords[winner])
	require.NoError(t, err)
	_, err = h.credentials.Authenticate(ctx, "ada@example.com", passwords[1-winner])
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	require.Equal(t, 0, h.store.ResetCount())
}

func TestConfirmationLosesToNewerRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")
	old, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	var newer model.ResetRequestResult
	var requestErr error
	resets := newPausedResetService(h, func() {
		newer, requestErr = h.resets.RequestReset(ctx, "ada@example.com")
	})

	err = resets.ConfirmReset(ctx, model.ResetConfirmInput{
		Email: "ada@example.com", Token: old.DebugToken, NewPassword: "brandnew1",
	})
	require.NoError(t, requestErr)
	require.ErrorIs(t, err, model.ErrResetTokenInvalid)

	_, err = h.credentials.Authenticate(ctx, "ada@example.com", "secret1")
	require.NoError(t, err, "password is unchanged")

	live, err := h.store.Resets().Find(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, sha(newer.DebugToken), live.TokenHash)
}

func TestConfirmRejectsOverlongPasswordWithoutConsumingToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, service.WithDebug(true))
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")
	res, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	err = h.resets.ConfirmReset(ctx, model.ResetConfirmInput{
		Email: "ada@example.com", Token: res.DebugToken, NewPassword: strings.Repeat("é", 40),
	})
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Contains(t, validation.Fields, "password")
	require.Equal(t, 1, h.store.ResetCount())
}

func TestReapResets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ada@example.com", "secret1")
	h.register(t, "bob@example.com", "secret1")

	_, err := h.resets.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	h.clock.Advance(12 * time.Hour)
	_, err = h.resets.RequestReset(ctx, "bob@example.com")
	require.NoError(t, err)

	h.clock.Advance(13 * time.Hour)
	n, err := h.resets.Reap(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 1, h.store.ResetCount())
}
