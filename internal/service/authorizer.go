package service

import (
	"context"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/model"
)

// Authorizer admits a user when it holds any of the required roles or any of the required
// permissions. It never writes.
type Authorizer struct {
	rbac *RBACService
	opts options
}

func NewAuthorizer(rbac *RBACService, opts ...Option) *Authorizer {
	return &Authorizer{rbac: rbac, opts: buildOptions(opts)}
}

func (a *Authorizer) Authorize(ctx context.Context, user model.User, req model.Requirement) error {
	if req.IsEmpty() {
		return nil
	}

	roles, err := a.rbac.UserRoles(ctx, user.ID)
	if err != nil {
		return err
	}

	for _, want := range req.Roles {
		for _, r := range roles {
			if r.Name == want {
				return nil
			}
		}
	}

	if len(req.Permissions) > 0 {
		direct, err := a.rbac.DirectPermissions(ctx, user.ID)
		if err != nil {
			return err
		}
		effective := unionPermissions(direct, roles)
		for _, want := range req.Permissions {
			for _, p := range effective {
				if p.Name == want {
					return nil
				}
			}
		}
	}

	a.opts.publish(event.TypeAccessDenied, user.ID, map[string]any{
		"roles":       req.Roles,
		"permissions": req.Permissions,
	})
	return model.ErrForbidden
}
