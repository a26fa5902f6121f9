package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/ids"
	"go-rbac-auth/internal/model"
)

const accessTokenType = "access"

type accessClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// SessionService issues, validates and revokes bearer tokens. The access token is a signed
// JWT naming its session; the session row decides whether the token is still usable.
type SessionService struct {
	sessions SessionStore
	users    UserStore
	secret   []byte
	opts     options
}

func NewSessionService(sessions SessionStore, users UserStore, secret string, opts ...Option) (*SessionService, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		secret:   []byte(secret),
		opts:     buildOptions(opts),
	}, nil
}

func (s *SessionService) AccessTTL() time.Duration {
	return s.opts.accessTTL
}

func (s *SessionService) RefreshTTL() time.Duration {
	return s.opts.refreshTTL
}

// Issue starts a new session for user. Nothing is returned unless the session was stored.
func (s *SessionService) Issue(ctx context.Context, user model.User, client model.ClientInfo) (model.IssuedSession, error) {
	now := s.opts.now()
	sessionID := ids.NewSessionID(now)

	jti, err := randomSecret()
	if err != nil {
		return model.IssuedSession{}, err
	}

	access, err := s.sign(accessClaims{
		SessionID: sessionID,
		Type:      accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.accessTTL)),
		},
	})
	if err != nil {
		return model.IssuedSession{}, err
	}

	refreshSecret, err := randomSecret()
	if err != nil {
		return model.IssuedSession{}, err
	}

	session := model.Session{
		ID:               sessionID,
		UserID:           user.ID,
		TokenHash:        hashSecret(access),
		RefreshHash:      hashSecret(refreshSecret),
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.opts.accessTTL),
		RefreshExpiresAt: now.Add(s.opts.refreshTTL),
		UserAgent:        truncate(client.UserAgent, 512),
		IP:               truncate(client.IP, 64),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return model.IssuedSession{}, fmt.Errorf("issue session: %w", err)
	}

	s.opts.publish(event.TypeSessionIssued, user.ID, map[string]any{"session_id": sessionID, "ip": session.IP})

	return model.IssuedSession{
		SessionID:        sessionID,
		AccessToken:      access,
		RefreshToken:     sessionID + "." + refreshSecret,
		ExpiresAt:        session.ExpiresAt,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}, nil
}

func (s *SessionService) sign(claims accessClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Validate resolves an access token to its live session and user.
func (s *SessionService) Validate(ctx context.Context, token string) (model.AuthSession, error) {
	claims, err := s.parse(token)
	if err != nil {
		return model.AuthSession{}, err
	}

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return model.AuthSession{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.AuthSession{}, err
	}

	if !hashMatches(token, session.TokenHash) || session.UserID != claims.Subject {
		return model.AuthSession{}, model.ErrInvalidToken
	}
	if session.IsRevoked() {
		return model.AuthSession{}, model.ErrTokenRevoked
	}

	now := s.opts.now()
	if session.IsExpired(now) {
		// The refresh half may still be valid, so only fully spent sessions are dropped here.
		if !now.Before(session.RefreshExpiresAt) {
			s.reapOne(ctx, session.ID)
		}
		return model.AuthSession{}, model.ErrTokenExpired
	}

	user, err := s.activeUser(ctx, session.UserID)
	if err != nil {
		return model.AuthSession{}, err
	}

	return model.AuthSession{
		SessionID: session.ID,
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *SessionService) parse(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	// Expiry is decided by the session row, so only the signature is checked here.
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, model.ErrInvalidToken
	}
	if claims.Type != accessTokenType || claims.Subject == "" || !ids.IsSessionID(claims.SessionID) {
		return nil, model.ErrInvalidToken
	}
	return claims, nil
}

func (s *SessionService) activeUser(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.User{}, err
	}
	if !user.IsActive() {
		return model.User{}, model.ErrUserInactive
	}
	return user, nil
}

func (s *SessionService) reapOne(ctx context.Context, sessionID string) {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		slog.Warn("failed to delete expired session", "session_id", sessionID, "error", err)
	}
}

// Refresh exchanges a refresh token for a new session. The old session is revoked first,
// so a refresh token works at most once.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, client model.ClientInfo) (model.IssuedSession, error) {
	sessionID, secret, ok := strings.Cut(strings.TrimSpace(refreshToken), ".")
	if !ok || secret == "" || !ids.IsSessionID(sessionID) {
		return model.IssuedSession{}, model.ErrInvalidToken
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return model.IssuedSession{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.IssuedSession{}, err
	}

	if session.RefreshHash == "" || !hashMatches(secret, session.RefreshHash) {
		return model.IssuedSession{}, model.ErrInvalidToken
	}
	if session.IsRevoked() {
		return model.IssuedSession{}, model.ErrTokenRevoked
	}

	now := s.opts.now()
	if !now.Before(session.RefreshExpiresAt) {
		s.reapOne(ctx, session.ID)
		return model.IssuedSession{}, model.ErrTokenExpired
	}

	user, err := s.activeUser(ctx, session.UserID)
	if err != nil {
		return model.IssuedSession{}, err
	}

	claimed, err := s.sessions.Claim(ctx, session.ID, now)
	if err != nil {
		return model.IssuedSession{}, err
	}
	if !claimed {
		return model.IssuedSession{}, model.ErrTokenRevoked
	}

	s.opts.publish(event.TypeSessionRevoked, user.ID, map[string]any{"session_id": session.ID, "reason": "refresh"})
	return s.Issue(ctx, user, client)
}

// Revoke terminally revokes one session.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, s.opts.now()); err != nil {
		return err
	}
	s.opts.publish(event.TypeSessionRevoked, "", map[string]any{"session_id": sessionID, "reason": "logout"})
	return nil
}

// RevokeAll revokes every live session of userID and returns how many were affected.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, s.opts.now())
	if err != nil {
		return 0, err
	}
	s.opts.publish(event.TypeSessionsRevokedAll, userID, map[string]any{"count": n})
	return n, nil
}

// Reap deletes sessions that can no longer be used.
func (s *SessionService) Reap(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.opts.now())
}

func truncate(v string, limit int) string {
	if len(v) <= limit {
		return v
	}
	return v[:limit]
}
