package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-rbac-auth/internal/model"
)

type PasswordResetRepository struct {
	db DB
}

func NewPasswordResetRepository(db DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores rec as the only pending reset for its email. A single statement keeps
// concurrent requests for one email from both believing they own the live token.
func (r *PasswordResetRepository) Upsert(ctx context.Context, rec model.PasswordReset) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO password_resets (email, token_hash, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO UPDATE
		 SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at`,
		rec.Email, rec.TokenHash, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert password reset: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) Find(ctx context.Context, email string) (model.PasswordReset, error) {
	var rec model.PasswordReset
	err := r.db.QueryRow(ctx,
		`SELECT email, token_hash, created_at FROM password_resets WHERE email = $1`, email).
		Scan(&rec.Email, &rec.TokenHash, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PasswordReset{}, model.ErrResetNotFound
	}
	if err != nil {
		return model.PasswordReset{}, fmt.Errorf("find password reset: %w", err)
	}
	return rec, nil
}

// Delete removes the pending reset for email only if it still carries tokenHash, so a
// newer request is never consumed by an older confirmation. An empty tokenHash deletes
// unconditionally.
func (r *PasswordResetRepository) Delete(ctx context.Context, email string, tokenHash string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM password_resets WHERE email = $1 AND ($2 = '' OR token_hash = $2)`, email, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete password reset: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PasswordResetRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean stale password resets: %w", err)
	}
	return tag.RowsAffected(), nil
}
