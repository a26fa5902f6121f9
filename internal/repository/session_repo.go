package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-rbac-auth/internal/model"
)

const sessionColumns = `id, user_id, token_hash, COALESCE(refresh_hash, ''), issued_at, expires_at,
	COALESCE(refresh_expires_at, expires_at), revoked_at, user_agent, ip`

type SessionRepository struct {
	db DB
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	var refreshHash, refreshExpires any
	if s.RefreshHash != "" {
		refreshHash = s.RefreshHash
		refreshExpires = s.RefreshExpiresAt
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, refresh_hash, issued_at, expires_at,
		                       refresh_expires_at, user_agent, ip)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.TokenHash, refreshHash, s.IssuedAt, s.ExpiresAt, refreshExpires, s.UserAgent, s.IP)
	if err != nil {
		return fmt.Errorf("store session: %w", translate(err, s.ID, model.ErrUserNotFound))
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshHash, &s.IssuedAt, &s.ExpiresAt,
			&s.RefreshExpiresAt, &s.RevokedAt, &s.UserAgent, &s.IP)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// Revoke marks one session revoked. Revoking an already revoked session keeps the first timestamp.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// Claim revokes the session only if it is still live and reports whether this call did
// so. Refresh rotation uses it so that one refresh token yields at most one new session.
func (r *SessionRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("claim session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that can no longer be used for access or refresh, and
// revoked sessions whose access window has passed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions
		 WHERE COALESCE(refresh_expires_at, expires_at) <= $1
		    OR (revoked_at IS NOT NULL AND expires_at <= $1)`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
