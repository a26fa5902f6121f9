package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/model"
)

// RBACService maintains roles, permissions and their bindings to users. Every read goes
// to the store so that a mutation is visible to the very next check.
type RBACService struct {
	roles       RoleStore
	permissions PermissionStore
	users       UserStore
	opts        options
}

func NewRBACService(roles RoleStore, permissions PermissionStore, users UserStore, opts ...Option) *RBACService {
	return &RBACService{
		roles:       roles,
		permissions: permissions,
		users:       users,
		opts:        buildOptions(opts),
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.NewValidationError("name", "This field is required")
	}
	return name, nil
}

func (s *RBACService) CreateRole(ctx context.Context, actorID string, name string, permissionIDs []string) (model.Role, error) {
	name, err := cleanName(name)
	if err != nil {
		return model.Role{}, err
	}

	taken, err := s.roles.NameTaken(ctx, name, "")
	if err != nil {
		return model.Role{}, err
	}
	if taken {
		return model.Role{}, &model.ConflictError{Field: "name", Value: name}
	}

	now := s.opts.now()
	role := model.Role{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.roles.Create(ctx, role, permissionIDs); err != nil {
		return model.Role{}, err
	}

	s.opts.publish(event.TypeRoleCreated, actorID, map[string]any{"role_id": role.ID, "name": role.Name})
	return s.roles.FindByID(ctx, role.ID)
}

func (s *RBACService) GetRole(ctx context.Context, id string) (model.Role, error) {
	return s.roles.FindByID(ctx, id)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.roles.List(ctx)
}

// UpdateRole renames the role and, when update.PermissionIDs is set, replaces its
// permission set. Keeping the current name is not a conflict.
func (s *RBACService) UpdateRole(ctx context.Context, actorID string, id string, update model.RoleUpdate) (model.Role, error) {
	if update.Name != nil {
		name, err := cleanName(*update.Name)
		if err != nil {
			return model.Role{}, err
		}
		taken, err := s.roles.NameTaken(ctx, name, id)
		if err != nil {
			return model.Role{}, err
		}
		if taken {
			return model.Role{}, &model.ConflictError{Field: "name", Value: name}
		}
		update.Name = &name
	}

	if err := s.roles.Update(ctx, id, update, s.opts.now()); err != nil {
		return model.Role{}, err
	}

	s.opts.publish(event.TypeRoleUpdated, actorID, map[string]any{"role_id": id})
	return s.roles.FindByID(ctx, id)
}

func (s *RBACService) SyncRolePermissions(ctx context.Context, actorID string, id string, permissionIDs []string) (model.Role, error) {
	if permissionIDs == nil {
		permissionIDs = []string{}
	}
	return s.UpdateRole(ctx, actorID, id, model.RoleUpdate{PermissionIDs: &permissionIDs})
}

// DeleteRole removes the role and its bindings. The permissions themselves remain.
func (s *RBACService) DeleteRole(ctx context.Context, actorID string, id string) error {
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.opts.publish(event.TypeRoleDeleted, actorID, map[string]any{"role_id": id})
	return nil
}

func (s *RBACService) CreatePermission(ctx context.Context, actorID string, name string) (model.Permission, error) {
	name, err := cleanName(name)
	if err != nil {
		return model.Permission{}, err
	}

	taken, err := s.permissions.NameTaken(ctx, name, "")
	if err != nil {
		return model.Permission{}, err
	}
	if taken {
		return model.Permission{}, &model.ConflictError{Field: "name", Value: name}
	}

	now := s.opts.now()
	p := model.Permission{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.permissions.Create(ctx, p); err != nil {
		return model.Permission{}, err
	}

	s.opts.publish(event.TypePermissionCreated, actorID, map[string]any{"permission_id": p.ID, "name": p.Name})
	return p, nil
}

func (s *RBACService) GetPermission(ctx context.Context, id string) (model.Permission, error) {
	return s.permissions.FindByID(ctx, id)
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	return s.permissions.List(ctx)
}

func (s *RBACService) UpdatePermission(ctx context.Context, actorID string, id string, name string) (model.Permission, error) {
	name, err := cleanName(name)
	if err != nil {
		return model.Permission{}, err
	}

	taken, err := s.permissions.NameTaken(ctx, name, id)
	if err != nil {
		return model.Permission{}, err
	}
	if taken {
		return model.Permission{}, &model.ConflictError{Field: "name", Value: name}
	}

	p, err := s.permissions.Rename(ctx, id, name, s.opts.now())
	if err != nil {
		return model.Permission{}, err
	}

	s.opts.publish(event.TypePermissionUpdated, actorID, map[string]any{"permission_id": id})
	return p, nil
}

func (s *RBACService) DeletePermission(ctx context.Context, actorID string, id string) error {
	if err := s.permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.opts.publish(event.TypePermissionDeleted, actorID, map[string]any{"permission_id": id})
	return nil
}

// AssignRolesToUser makes roleIDs the complete role set of the user.
func (s *RBACService) AssignRolesToUser(ctx context.Context, actorID string, userID string, roleIDs []string) ([]model.Role, error) {
	if err := s.users.SetRoles(ctx, userID, roleIDs); err != nil {
		return nil, err
	}
	s.opts.publish(event.TypeUserRolesSynced, actorID, map[string]any{"user_id": userID, "count": len(roleIDs)})
	return s.roles.ListByUser(ctx, userID)
}

// AssignPermissionsToUser makes permissionIDs the complete direct permission set of the user.
func (s *RBACService) AssignPermissionsToUser(ctx context.Context, actorID string, userID string, permissionIDs []string) ([]model.Permission, error) {
	if err := s.users.SetPermissions(ctx, userID, permissionIDs); err != nil {
		return nil, err
	}
	s.opts.publish(event.TypeUserPermissionsSync, actorID, map[string]any{"user_id": userID, "count": len(permissionIDs)})
	return s.permissions.ListByUser(ctx, userID)
}

func (s *RBACService) UserRoles(ctx context.Context, userID string) ([]model.Role, error) {
	return s.roles.ListByUser(ctx, userID)
}

func (s *RBACService) DirectPermissions(ctx context.Context, userID string) ([]model.Permission, error) {
	return s.permissions.ListByUser(ctx, userID)
}

// EffectivePermissions is the union of the user's direct permissions and the permissions
// of every role bound to it, deduplicated by id and sorted by name.
func (s *RBACService) EffectivePermissions(ctx context.Context, userID string) ([]model.Permission, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	direct, err := s.permissions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return unionPermissions(direct, roles), nil
}

func unionPermissions(direct []model.Permission, roles []model.Role) []model.Permission {
	seen := make(map[string]struct{})
	out := make([]model.Permission, 0, len(direct))

	add := func(p model.Permission) {
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	for _, p := range direct {
		add(p)
	}
	for _, r := range roles {
		for _, p := range r.Permissions {
			add(p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *RBACService) HasRole(ctx context.Context, userID string, roleName string) (bool, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

func (s *RBACService) HasPermission(ctx context.Context, userID string, permissionName string) (bool, error) {
	permissions, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if p.Name == permissionName {
			return true, nil
		}
	}
	return false, nil
}

// Profile is the user with its role names and effective permission names as of now.
func (s *RBACService) Profile(ctx context.Context, user model.User) (model.Profile, error) {
	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return model.Profile{}, err
	}
	direct, err := s.permissions.ListByUser(ctx, user.ID)
	if err != nil {
		return model.Profile{}, err
	}

	profile := model.Profile{
		User:        user,
		Roles:       make([]string, 0, len(roles)),
		Permissions: make([]string, 0),
	}
	for _, r := range roles {
		profile.Roles = append(profile.Roles, r.Name)
	}
	for _, p := range unionPermissions(direct, roles) {
		profile.Permissions = append(profile.Permissions, p.Name)
	}
	return profile, nil
}
