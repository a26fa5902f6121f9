package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-rbac-auth/internal/model"
)

const permissionColumns = `id, name, created_at, updated_at`

type PermissionRepository struct {
	db DB
}

func NewPermissionRepository(db DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func scanPermission(row pgx.Row) (model.Permission, error) {
	var p model.Permission
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PermissionRepository) Create(ctx context.Context, p model.Permission) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO permissions (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapUnlessDomain("create permission", translate(err, p.Name, nil))
	}
	return nil
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string) (model.Permission, error) {
	if !validID(id) {
		return model.Permission{}, model.ErrPermissionNotFound
	}

	p, err := scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Permission{}, model.ErrPermissionNotFound
	}
	if err != nil {
		return model.Permission{}, fmt.Errorf("find permission by id: %w", err)
	}
	return p, nil
}

func (r *PermissionRepository) List(ctx context.Context) ([]model.Permission, error) {
	return r.queryPermissions(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
}

// ListByUser returns only the permissions granted to userID directly.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]model.Permission, error) {
	return r.queryPermissions(ctx,
		`SELECT p.id, p.name, p.created_at, p.updated_at
		 FROM permissions p
		 JOIN user_permissions up ON up.permission_id = p.id
		 WHERE up.user_id = $1
		 ORDER BY p.name`, userID)
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, query string, args ...any) ([]model.Permission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]model.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

func (r *PermissionRepository) NameTaken(ctx context.Context, name string, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM permissions WHERE name = $1 AND id::text <> $2)`, name, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check permission name: %w", err)
	}
	return exists, nil
}

func (r *PermissionRepository) Rename(ctx context.Context, id string, name string, now time.Time) (model.Permission, error) {
	if !validID(id) {
		return model.Permission{}, model.ErrPermissionNotFound
	}

	p, err := scanPermission(r.db.QueryRow(ctx,
		`UPDATE permissions SET name = $2, updated_at = $3 WHERE id = $1 RETURNING `+permissionColumns,
		id, name, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Permission{}, model.ErrPermissionNotFound
	}
	if err != nil {
		return model.Permission{}, wrapUnlessDomain("rename permission", translate(err, name, nil))
	}
	return p, nil
}

// Delete removes the permission and, through cascading keys, every role and user binding to it.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrPermissionNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPermissionNotFound
	}
	return nil
}
