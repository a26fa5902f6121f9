package service

import (
	"context"
	"time"

	"go-rbac-auth/internal/model"
)

// The store interfaces are satisfied by the pgx repositories and by the in-memory fakes in
// servicetest.

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	EmailTaken(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, u model.User, roleIDs []string, permissionIDs []string) error
	Update(ctx context.Context, id string, patch model.UserPatch, now time.Time) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string, now time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, query model.UserListQuery) ([]model.User, model.Meta, error)
	Count(ctx context.Context) (int, error)
	SetRoles(ctx context.Context, userID string, roleIDs []string) error
	SetPermissions(ctx context.Context, userID string, permissionIDs []string) error
}

type RoleStore interface {
	Create(ctx context.Context, role model.Role, permissionIDs []string) error
	FindByID(ctx context.Context, id string) (model.Role, error)
	FindByName(ctx context.Context, name string) (model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	ListByUser(ctx context.Context, userID string) ([]model.Role, error)
	NameTaken(ctx context.Context, name string, excludeID string) (bool, error)
	Update(ctx context.Context, id string, update model.RoleUpdate, now time.Time) error
	Delete(ctx context.Context, id string) error
}

type PermissionStore interface {
	Create(ctx context.Context, p model.Permission) error
	FindByID(ctx context.Context, id string) (model.Permission, error)
	List(ctx context.Context) ([]model.Permission, error)
	ListByUser(ctx context.Context, userID string) ([]model.Permission, error)
	NameTaken(ctx context.Context, name string, excludeID string) (bool, error)
	Rename(ctx context.Context, id string, name string, now time.Time) (model.Permission, error)
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	FindByID(ctx context.Context, id string) (model.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ResetStore interface {
	Upsert(ctx context.Context, reset model.PasswordReset) error
	Find(ctx context.Context, email string) (model.PasswordReset, error)
	Delete(ctx context.Context, email string, tokenHash string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers the password reset message out of band.
type Notifier interface {
	SendPasswordReset(ctx context.Context, n model.ResetNotification) error
}
