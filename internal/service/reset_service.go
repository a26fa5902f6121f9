package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/model"
)

// passwordStorer is the part of CredentialService the reset flow needs.
type passwordStorer interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	StorePassword(ctx context.Context, userID string, password string) error
}

// ResetService runs the password reset state machine:
// no request -> pending -> confirmed or expired.
type ResetService struct {
	resets   ResetStore
	users    passwordStorer
	sessions sessionRevoker
	notifier Notifier
	opts     options

	inflight sync.WaitGroup
}

func NewResetService(resets ResetStore, users passwordStorer, sessions sessionRevoker, notifier Notifier, opts ...Option) *ResetService {
	return &ResetService{
		resets:   resets,
		users:    users,
		sessions: sessions,
		notifier: notifier,
		opts:     buildOptions(opts),
	}
}

// RequestReset answers identically whether or not email belongs to a user.
func (s *ResetService) RequestReset(ctx context.Context, email string) (model.ResetRequestResult, error) {
	result := model.ResetRequestResult{Message: model.ResetRequestedMessage}

	email = normalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return result, nil
	}
	if err != nil {
		return model.ResetRequestResult{}, err
	}

	token, err := randomSecret()
	if err != nil {
		return model.ResetRequestResult{}, err
	}

	if err := s.resets.Upsert(ctx, model.PasswordReset{
		Email:     user.Email,
		TokenHash: hashSecret(token),
		CreatedAt: s.opts.now(),
	}); err != nil {
		return model.ResetRequestResult{}, err
	}

	s.dispatch(model.ResetNotification{
		To:        user.Email,
		Name:      user.Name,
		Link:      s.resetLink(user.Email, token),
		ExpiresIn: s.opts.resetWindow,
	})

	s.opts.publish(event.TypePasswordResetRequest, user.ID, nil)

	if s.opts.debug {
		result.DebugToken = token
	}
	return result, nil
}

func (s *ResetService) resetLink(email string, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return s.opts.resetURL + "?" + q.Encode()
}

// dispatch sends the notification in the background. Delivery failures are only logged.
func (s *ResetService) dispatch(n model.ResetNotification) {
	if s.notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.notifier.SendPasswordReset(ctx, n); err != nil {
			slog.Warn("password reset notification failed", "recipient", n.To, "error", err)
		}
	}()
}

// Wait blocks until every pending notification has been attempted.
func (s *ResetService) Wait() {
	s.inflight.Wait()
}

// ConfirmReset checks, in order: a pending record exists, the token matches, the record
// is inside the window, the user exists. It then consumes the record, sets the password
// and revokes all of the user's sessions. Consumption is a conditional delete on the
// token hash, so of any confirmations racing on one token, or against a newer request,
// only the one that removed the row changes the password.
func (s *ResetService) ConfirmReset(ctx context.Context, in model.ResetConfirmInput) error {
	if in.NewPassword == "" {
		return model.NewValidationError("password", "This field is required")
	}
	if err := checkPasswordLength(in.NewPassword); err != nil {
		return err
	}
	email := normalizeEmail(in.Email)

	record, err := s.resets.Find(ctx, email)
	if errors.Is(err, model.ErrResetNotFound) {
		return model.ErrResetTokenInvalid
	}
	if err != nil {
		return err
	}

	if in.Token == "" || !hashMatches(in.Token, record.TokenHash) {
		return model.ErrResetTokenInvalid
	}

	if s.opts.now().Sub(record.CreatedAt) > s.opts.resetWindow {
		if _, err := s.resets.Delete(ctx, email, record.TokenHash); err != nil {
			slog.Warn("failed to delete expired password reset", "email", email, "error", err)
		}
		return model.ErrResetTokenExpired
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	claimed, err := s.resets.Delete(ctx, email, record.TokenHash)
	if err != nil {
		return fmt.Errorf("consume password reset: %w", err)
	}
	if !claimed {
		return model.ErrResetTokenInvalid
	}

	if err := s.users.StorePassword(ctx, user.ID, in.NewPassword); err != nil {
		return err
	}

	if _, err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions after password reset: %w", err)
	}

	s.opts.publish(event.TypePasswordResetDone, user.ID, nil)
	return nil
}

// Reap removes pending records that are past the window.
func (s *ResetService) Reap(ctx context.Context) (int64, error) {
	return s.resets.DeleteOlderThan(ctx, s.opts.now().Add(-s.opts.resetWindow))
}
