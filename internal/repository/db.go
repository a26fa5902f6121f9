package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"go-rbac-auth/internal/model"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is satisfied by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// translate maps constraint violations onto domain errors. value is the user-supplied
// value reported back in a ConflictError.
func translate(err error, value string, missing error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgErrUniqueViolation:
		return &model.ConflictError{Field: conflictField(pgErr.ConstraintName), Value: value}
	case pgErrForeignKeyViolation:
		if missing != nil {
			return missing
		}
	}

	return err
}

// validID reports whether id can name a row in a uuid keyed table. Callers treat
// anything else as absent instead of letting postgres reject the cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func conflictField(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return "email"
	case strings.Contains(constraint, "name"):
		return "name"
	default:
		return "id"
	}
}

func withTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// checkIDs reports a validation error when any of ids is absent from table.
func checkIDs(ctx context.Context, q querier, table string, field string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var found int
	// table is one of a fixed set of identifiers, never user input.
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ANY($1)`, ids).Scan(&found)
	if err != nil {
		return err
	}

	if found != len(ids) {
		return model.NewValidationError(field, "contains unknown ids")
	}

	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
