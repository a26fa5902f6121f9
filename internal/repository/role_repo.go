package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"go-rbac-auth/internal/model"
)

type RoleRepository struct {
	db DB
}

func NewRoleRepository(db DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) Create(ctx context.Context, role model.Role, permissionIDs []string) error {
	permissionIDs = dedupe(permissionIDs)

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := checkIDs(ctx, tx, "permissions", "permission_ids", permissionIDs); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO roles (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			role.ID, role.Name, role.CreatedAt, role.UpdatedAt); err != nil {
			return translate(err, role.Name, nil)
		}

		return syncJoin(ctx, tx, "role_permissions", "role_id", "permission_id", role.ID, permissionIDs)
	})
	if err != nil {
		return wrapUnlessDomain("create role", err)
	}
	return nil
}

func (r *RoleRepository) FindByID(ctx context.Context, id string) (model.Role, error) {
	if !validID(id) {
		return model.Role{}, model.ErrRoleNotFound
	}

	var role model.Role
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role by id: %w", err)
	}

	roles := []model.Role{role}
	if err := loadRolePermissions(ctx, r.db, roles); err != nil {
		return model.Role{}, err
	}
	return roles[0], nil
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role by name: %w", err)
	}
	return role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]model.Role, error) {
	return r.queryRoles(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY name`)
}

// ListByUser returns the roles bound to userID with their permissions populated.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]model.Role, error) {
	return r.queryRoles(ctx,
		`SELECT r.id, r.name, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.name`, userID)
}

func (r *RoleRepository) queryRoles(ctx context.Context, query string, args ...any) ([]model.Role, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]model.Role, 0)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	if err := loadRolePermissions(ctx, r.db, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// loadRolePermissions fills Permissions for every role with one query.
func loadRolePermissions(ctx context.Context, q querier, roles []model.Role) error {
	if len(roles) == 0 {
		return nil
	}

	index := make(map[string]int, len(roles))
	roleIDs := make([]string, 0, len(roles))
	for i := range roles {
		roles[i].Permissions = make([]model.Permission, 0)
		index[roles[i].ID] = i
		roleIDs = append(roleIDs, roles[i].ID)
	}

	rows, err := q.Query(ctx,
		`SELECT rp.role_id, p.id, p.name, p.created_at, p.updated_at
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)
		 ORDER BY p.name`, roleIDs)
	if err != nil {
		return fmt.Errorf("load role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID string
		var p model.Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("scan role permission: %w", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return rows.Err()
}

func (r *RoleRepository) NameTaken(ctx context.Context, name string, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1 AND id::text <> $2)`, name, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role name: %w", err)
	}
	return exists, nil
}

// Update renames the role and, when update.PermissionIDs is set, fully syncs its permissions.
func (r *RoleRepository) Update(ctx context.Context, id string, update model.RoleUpdate, now time.Time) error {
	if !validID(id) {
		return model.ErrRoleNotFound
	}

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var tag pgconn.CommandTag
		var err error
		if update.Name != nil {
			tag, err = tx.Exec(ctx, `UPDATE roles SET name = $2, updated_at = $3 WHERE id = $1`, id, *update.Name, now)
		} else {
			tag, err = tx.Exec(ctx, `UPDATE roles SET updated_at = $2 WHERE id = $1`, id, now)
		}
		if err != nil {
			name := ""
			if update.Name != nil {
				name = *update.Name
			}
			return translate(err, name, nil)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrRoleNotFound
		}

		if update.PermissionIDs == nil {
			return nil
		}

		ids := dedupe(*update.PermissionIDs)
		if err := checkIDs(ctx, tx, "permissions", "permission_ids", ids); err != nil {
			return err
		}
		return syncJoin(ctx, tx, "role_permissions", "role_id", "permission_id", id, ids)
	})
	if err != nil {
		return wrapUnlessDomain("update role", err)
	}
	return nil
}

// Delete removes the role; user and permission bindings go with it through cascading keys.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrRoleNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}
