package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-rbac-auth/internal/event"
	"go-rbac-auth/internal/model"
)

// sessionRevoker is the part of SessionService the credential store needs.
type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

type CredentialService struct {
	users    UserStore
	roles    RoleStore
	sessions sessionRevoker
	opts     options

	// dummyHash is compared against when the email is unknown so both paths pay for bcrypt.
	dummyHash []byte
}

func NewCredentialService(users UserStore, roles RoleStore, sessions sessionRevoker, opts ...Option) *CredentialService {
	o := buildOptions(opts)
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), o.bcryptCost)
	if err != nil {
		slog.Error("failed to prepare dummy password hash", "error", err)
	}
	return &CredentialService{
		users:     users,
		roles:     roles,
		sessions:  sessions,
		opts:      o,
		dummyHash: dummy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maxPasswordBytes is the most bcrypt will read.
const maxPasswordBytes = 72

func checkPasswordLength(password string) error {
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("password", fmt.Sprintf("Must be at most %d bytes long", maxPasswordBytes))
	}
	return nil
}

func (s *CredentialService) hash(password string) (string, error) {
	if err := checkPasswordLength(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", model.NewValidationError("password", fmt.Sprintf("Must be at most %d bytes long", maxPasswordBytes))
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an active user bound to the default role.
func (s *CredentialService) Register(ctx context.Context, in model.RegisterInput) (model.User, error) {
	user, err := s.create(ctx, model.CreateUserInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
	}, nil, false)
	if err != nil {
		return model.User{}, err
	}

	s.opts.publish(event.TypeUserRegistered, user.ID, map[string]any{"email": user.Email})
	return user, nil
}

// CreateUser is the administrative variant of Register. Omitted RoleIDs bind the default role.
func (s *CredentialService) CreateUser(ctx context.Context, actorID string, in model.CreateUserInput) (model.User, error) {
	user, err := s.create(ctx, in, in.RoleIDs, in.RoleIDs != nil)
	if err != nil {
		return model.User{}, err
	}

	s.opts.publish(event.TypeUserCreated, actorID, map[string]any{"user_id": user.ID, "email": user.Email})
	return user, nil
}

func (s *CredentialService) create(ctx context.Context, in model.CreateUserInput, roleIDs []string, explicitRoles bool) (model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return model.User{}, model.NewValidationError("name", "This field is required")
	}
	if email == "" {
		return model.User{}, model.NewValidationError("email", "This field is required")
	}
	if in.Password == "" {
		return model.User{}, model.NewValidationError("password", "This field is required")
	}

	status := in.Status
	if status == "" {
		status = model.UserStatusActive
	}
	if status != model.UserStatusActive && status != model.UserStatusInactive {
		return model.User{}, model.NewValidationError("status", "Must be one of: active, inactive")
	}

	taken, err := s.users.EmailTaken(ctx, email, "")
	if err != nil {
		return model.User{}, err
	}
	if taken {
		return model.User{}, &model.ConflictError{Field: "email", Value: email}
	}

	if !explicitRoles {
		role, err := s.roles.FindByName(ctx, model.DefaultRoleName)
		switch {
		case err == nil:
			roleIDs = []string{role.ID}
		case errors.Is(err, model.ErrRoleNotFound):
			slog.Warn("default role missing, user created without roles", "role", model.DefaultRoleName)
		default:
			return model.User{}, err
		}
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return model.User{}, err
	}

	now := s.opts.now()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user, roleIDs, in.PermissionIDs); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Authenticate resolves the user behind email and password. Every failure, including an
// inactive account, is reported as ErrInvalidCredentials.
func (s *CredentialService) Authenticate(ctx context.Context, email string, password string) (model.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, model.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.opts.publish(event.TypeLoginFailed, "", map[string]any{"reason": "unknown_email"})
		return model.User{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}

	if !s.VerifyPassword(user, password) {
		s.opts.publish(event.TypeLoginFailed, user.ID, map[string]any{"reason": "wrong_password"})
		return model.User{}, model.ErrInvalidCredentials
	}
	if !user.IsActive() {
		s.opts.publish(event.TypeLoginFailed, user.ID, map[string]any{"reason": "inactive"})
		return model.User{}, model.ErrInvalidCredentials
	}

	return user, nil
}

func (s *CredentialService) VerifyPassword(user model.User, candidate string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(candidate)) == nil
}

// ChangePassword replaces the password of user and revokes every session it holds,
// including the one used to make the request.
func (s *CredentialService) ChangePassword(ctx context.Context, user model.User, current string, next string) error {
	if !s.VerifyPassword(user, current) {
		return model.ErrCurrentPasswordMismatch
	}
	if s.VerifyPassword(user, next) {
		return model.ErrSamePassword
	}

	if err := s.SetPassword(ctx, user.ID, next); err != nil {
		return err
	}

	s.opts.publish(event.TypePasswordChanged, user.ID, nil)
	return nil
}

// SetPassword stores password for userID, then revokes all of its sessions.
func (s *CredentialService) SetPassword(ctx context.Context, userID string, password string) error {
	if err := s.StorePassword(ctx, userID, password); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions after password change: %w", err)
	}
	return nil
}

// StorePassword hashes and stores password without touching sessions.
func (s *CredentialService) StorePassword(ctx context.Context, userID string, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash, s.opts.now())
}

func (s *CredentialService) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *CredentialService) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return s.users.FindByEmail(ctx, normalizeEmail(email))
}

func (s *CredentialService) ListUsers(ctx context.Context, query model.UserListQuery) ([]model.User, model.Meta, error) {
	return s.users.List(ctx, query)
}

// UpdateUser applies the set fields of update. A new password or a deactivation revokes
// all of the user's sessions.
func (s *CredentialService) UpdateUser(ctx context.Context, actorID string, id string, update model.UserUpdate) (model.User, error) {
	if update.IsEmpty() {
		return s.users.FindByID(ctx, id)
	}

	patch := model.UserPatch{Status: update.Status}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return model.User{}, model.NewValidationError("name", "This field is required")
		}
		patch.Name = &name
	}

	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return model.User{}, model.NewValidationError("email", "This field is required")
		}
		taken, err := s.users.EmailTaken(ctx, email, id)
		if err != nil {
			return model.User{}, err
		}
		if taken {
			return model.User{}, &model.ConflictError{Field: "email", Value: email}
		}
		patch.Email = &email
	}

	if update.Status != nil && *update.Status != model.UserStatusActive && *update.Status != model.UserStatusInactive {
		return model.User{}, model.NewValidationError("status", "Must be one of: active, inactive")
	}

	if update.Password != nil {
		hash, err := s.hash(*update.Password)
		if err != nil {
			return model.User{}, err
		}
		patch.PasswordHash = &hash
	}

	user, err := s.users.Update(ctx, id, patch, s.opts.now())
	if err != nil {
		return model.User{}, err
	}

	if update.Password != nil || !user.IsActive() {
		if _, err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
			return model.User{}, fmt.Errorf("revoke sessions after user update: %w", err)
		}
	}

	s.opts.publish(event.TypeUserUpdated, actorID, map[string]any{"user_id": user.ID})
	return user, nil
}

// DeleteUser removes the user together with its bindings and sessions. Administrators
// cannot delete themselves.
func (s *CredentialService) DeleteUser(ctx context.Context, actorID string, id string) error {
	if actorID == id {
		return model.NewValidationError("id", "You cannot delete your own account")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.opts.publish(event.TypeUserDeleted, actorID, map[string]any{"user_id": id})
	return nil
}

// SeedAdmin creates an administrator when no users exist yet. It reports whether a user
// was created.
func (s *CredentialService) SeedAdmin(ctx context.Context, name string, email string, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	admin, err := s.roles.FindByName(ctx, "admin")
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	user, err := s.create(ctx, model.CreateUserInput{
		Name:     name,
		Email:    email,
		Password: password,
	}, []string{admin.ID}, true)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	slog.Info("seeded administrator", "user_id", user.ID, "email", user.Email)
	return true, nil
}
