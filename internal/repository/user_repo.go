package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"go-rbac-auth/internal/model"
)

const userColumns = `id, name, email, password_hash, status, created_at, updated_at`

// maxListPage keeps the offset of a listing far inside int64.
const maxListPage = 1_000_000

// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	if !validID(id) {
		return model.User{}, model.ErrUserNotFound
	}

	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) EmailTaken(ctx context.Context, email string, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1) AND id::text <> $2)`,
		strings.TrimSpace(email), excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email taken: %w", err)
	}
	return exists, nil
}

// Create inserts the user and its initial bindings in one transaction.
func (r *UserRepository) Create(ctx context.Context, u model.User, roleIDs []string, permissionIDs []string) error {
	roleIDs = dedupe(roleIDs)
	permissionIDs = dedupe(permissionIDs)

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := checkIDs(ctx, tx, "roles", "role_ids", roleIDs); err != nil {
			return err
		}
		if err := checkIDs(ctx, tx, "permissions", "permission_ids", permissionIDs); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Status, u.CreatedAt, u.UpdatedAt); err != nil {
			return translate(err, u.Email, nil)
		}

		if len(roleIDs) > 0 {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id)
				 SELECT $1, unnest($2::uuid[])`, u.ID, roleIDs); err != nil {
				return err
			}
		}

		if len(permissionIDs) > 0 {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_permissions (user_id, permission_id)
				 SELECT $1, unnest($2::uuid[])`, u.ID, permissionIDs); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return wrapUnlessDomain("create user", err)
	}
	return nil
}

// Update applies only the non-nil fields of patch and returns the stored row.
func (r *UserRepository) Update(ctx context.Context, id string, patch model.UserPatch, now time.Time) (model.User, error) {
	if !validID(id) {
		return model.User{}, model.ErrUserNotFound
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	idx := 1

	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *patch.Name)
		idx++
	}
	if patch.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *patch.Email)
		idx++
	}
	if patch.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *patch.PasswordHash)
		idx++
	}
	if patch.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *patch.Status)
		idx++
	}

	sets = append(sets, fmt.Sprintf("updated_at = $%d", idx))
	args = append(args, now)
	idx++
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idx, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		email := ""
		if patch.Email != nil {
			email = *patch.Email
		}
		return model.User{}, wrapUnlessDomain("update user", translate(err, email, nil))
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string, now time.Time) error {
	if !validID(userID) {
		return model.ErrUserNotFound
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, now)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrUserNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, query model.UserListQuery) ([]model.User, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 25
	}
	if query.Limit > 100 {
		query.Limit = 100
	}
	if query.Page > maxListPage {
		query.Page = maxListPage
	}

	where := ""
	args := make([]any, 0, 3)
	if search := strings.TrimSpace(query.Search); search != "" {
		where = `WHERE name ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count users: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	n := len(args)
	dataQuery := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		userColumns, where, n+1, n+2)
	args = append(args, query.Limit, int64(query.Page-1)*int64(query.Limit))

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, meta, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// SetRoles replaces the user's role bindings with roleIDs.
func (r *UserRepository) SetRoles(ctx context.Context, userID string, roleIDs []string) error {
	return r.syncBindings(ctx, userID, roleIDs, bindingSpec{
		table:     "user_roles",
		column:    "role_id",
		refTable:  "roles",
		field:     "role_ids",
		operation: "sync user roles",
	})
}

// SetPermissions replaces the user's direct permission bindings with permissionIDs.
func (r *UserRepository) SetPermissions(ctx context.Context, userID string, permissionIDs []string) error {
	return r.syncBindings(ctx, userID, permissionIDs, bindingSpec{
		table:     "user_permissions",
		column:    "permission_id",
		refTable:  "permissions",
		field:     "permission_ids",
		operation: "sync user permissions",
	})
}

type bindingSpec struct {
	table     string
	column    string
	refTable  string
	field     string
	operation string
}

func (r *UserRepository) syncBindings(ctx context.Context, userID string, ids []string, spec bindingSpec) error {
	if !validID(userID) {
		return model.ErrUserNotFound
	}

	ids = dedupe(ids)

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if err := checkIDs(ctx, tx, spec.refTable, spec.field, ids); err != nil {
			return err
		}

		return syncJoin(ctx, tx, spec.table, "user_id", spec.column, userID, ids)
	})
	if err != nil {
		return wrapUnlessDomain(spec.operation, err)
	}
	return nil
}

// syncJoin makes the rows of a join table owned by ownerID equal to ids: bindings not
// listed are removed and newly listed ones are inserted.
func syncJoin(ctx context.Context, tx pgx.Tx, table string, ownerColumn string, column string, ownerID string, ids []string) error {
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND NOT (%s = ANY($2::uuid[]))`, table, ownerColumn, column),
		ownerID, ids); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	_, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::uuid[]) ON CONFLICT DO NOTHING`, table, ownerColumn, column),
		ownerID, ids)
	return err
}

// wrapUnlessDomain keeps domain errors bare so callers can match them, and adds
// operation context to everything else.
func wrapUnlessDomain(operation string, err error) error {
	var validation *model.ValidationError
	var conflict *model.ConflictError
	switch {
	case errors.As(err, &validation), errors.As(err, &conflict):
		return err
	case errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrRoleNotFound),
		errors.Is(err, model.ErrPermissionNotFound):
		return err
	}
	return fmt.Errorf("%s: %w", operation, err)
}
