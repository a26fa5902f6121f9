// Package servicetest provides in-memory stores and collaborators for service tests.
// The stores follow the same contracts as the pgx repositories, including cascading
// deletes and full-sync bindings.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-rbac-auth/internal/model"
)

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type set map[string]struct{}

func newSet(ids []string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Store is a single in-memory database shared by all the store views.
type Store struct {
	mu          sync.Mutex
	users       map[string]model.User
	roles       map[string]model.Role
	permissions map[string]model.Permission
	rolePerms   map[string]set
	userRoles   map[string]set
	userPerms   map[string]set
	sessions    map[string]model.Session
	resets      map[string]model.PasswordReset

	// SessionCreateErr, when set, is returned by Sessions().Create.
	SessionCreateErr error
}

func NewStore() *Store {
	return &Store{
		users:       map[string]model.User{},
		roles:       map[string]model.Role{},
		permissions: map[string]model.Permission{},
		rolePerms:   map[string]set{},
		userRoles:   map[string]set{},
		userPerms:   map[string]set{},
		sessions:    map[string]model.Session{},
		resets:      map[string]model.PasswordReset{},
	}
}

func (s *Store) Users() *UserStore             { return &UserStore{s} }
func (s *Store) Roles() *RoleStore             { return &RoleStore{s} }
func (s *Store) Permissions() *PermissionStore { return &PermissionStore{s} }
func (s *Store) Sessions() *SessionStore       { return &SessionStore{s} }
func (s *Store) Resets() *ResetStore           { return &ResetStore{s} }

// SeedRBAC loads the default permissions and the admin, editor and viewer roles.
func (s *Store) SeedRBAC() {
	names := []string{
		"view reports", "edit articles", "manage users", "create roles",
		"delete roles", "view dashboard", "export data", "import data",
	}
	for _, n := range names {
		s.SeedPermission(n)
	}
	s.SeedRole("admin", names...)
	s.SeedRole("editor", "edit articles", "view reports", "view dashboard")
	s.SeedRole("viewer", "view reports")
}

func (s *Store) SeedPermission(name string) model.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := model.Permission{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	s.permissions[p.ID] = p
	return p
}

// SeedRole creates a role bound to the named permissions, which must already exist.
func (s *Store) SeedRole(name string, permissionNames ...string) model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := model.Role{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	s.roles[role.ID] = role
	bound := set{}
	for _, pn := range permissionNames {
		if p, ok := s.permissionByNameLocked(pn); ok {
			bound[p.ID] = struct{}{}
		}
	}
	s.rolePerms[role.ID] = bound
	return s.roleLocked(role.ID)
}

func (s *Store) PermissionByName(name string) model.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _ := s.permissionByNameLocked(name)
	return p
}

func (s *Store) RoleByName(name string) model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.roles {
		if r.Name == name {
			return s.roleLocked(id)
		}
	}
	return model.Role{}
}

func (s *Store) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}

func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) permissionByNameLocked(name string) (model.Permission, bool) {
	for _, p := range s.permissions {
		if p.Name == name {
			return p, true
		}
	}
	return model.Permission{}, false
}

func (s *Store) roleLocked(id string) model.Role {
	role := s.roles[id]
	role.Permissions = s.permissionsLocked(s.rolePerms[id])
	return role
}

func (s *Store) permissionsLocked(ids set) []model.Permission {
	out := make([]model.Permission, 0, len(ids))
	for id := range ids {
		if p, ok := s.permissions[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) checkIDsLocked(field string, ids []string, exists func(string) bool) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if !exists(id) {
			return model.NewValidationError(field, "contains unknown ids")
		}
	}
	return nil
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := set{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type UserStore struct{ s *Store }

func (u *UserStore) FindByID(_ context.Context, id string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (u *UserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.userByEmailLocked(email, ""); ok {
		return user, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *Store) userByEmailLocked(email string, excludeID string) (model.User, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.ID != excludeID && strings.ToLower(user.Email) == email {
			return user, true
		}
	}
	return model.User{}, false
}

func (u *UserStore) EmailTaken(_ context.Context, email string, excludeID string) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	_, ok := u.s.userByEmailLocked(email, excludeID)
	return ok, nil
}

func (u *UserStore) Create(_ context.Context, user model.User, roleIDs []string, permissionIDs []string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	roleIDs = cleanIDs(roleIDs)
	permissionIDs = cleanIDs(permissionIDs)
	if err := u.s.checkIDsLocked("role_ids", roleIDs, func(id string) bool { _, ok := u.s.roles[id]; return ok }); err != nil {
		return err
	}
	if err := u.s.checkIDsLocked("permission_ids", permissionIDs, func(id string) bool { _, ok := u.s.permissions[id]; return ok }); err != nil {
		return err
	}
	if _, ok := u.s.userByEmailLocked(user.Email, ""); ok {
		return &model.ConflictError{Field: "email", Value: user.Email}
	}

	u.s.users[user.ID] = user
	u.s.userRoles[user.ID] = newSet(roleIDs)
	u.s.userPerms[user.ID] = newSet(permissionIDs)
	return nil
}

func (u *UserStore) Update(_ context.Context, id string, patch model.UserPatch, now time.Time) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	if patch.Email != nil {
		if _, taken := u.s.userByEmailLocked(*patch.Email, id); taken {
			return model.User{}, &model.ConflictError{Field: "email", Value: *patch.Email}
		}
		user.Email = *patch.Email
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	user.UpdatedAt = now
	u.s.users[id] = user
	return user, nil
}

func (u *UserStore) UpdatePassword(_ context.Context, userID string, passwordHash string, now time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = now
	u.s.users[userID] = user
	return nil
}

func (u *UserStore) Delete(_ context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(u.s.users, id)
	delete(u.s.userRoles, id)
	delete(u.s.userPerms, id)
	for sid, sess := range u.s.sessions {
		if sess.UserID == id {
			delete(u.s.sessions, sid)
		}
	}
	return nil
}

func (u *UserStore) List(_ context.Context, query model.UserListQuery) ([]model.User, model.Meta, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 25
	}

	search := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]model.User, 0)
	for _, user := range u.s.users {
		if search == "" || strings.Contains(strings.ToLower(user.Name), search) || strings.Contains(strings.ToLower(user.Email), search) {
			matched = append(matched, user)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	meta := model.NewMeta(query.Page, query.Limit, len(matched))
	start := (query.Page - 1) * query.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + query.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], meta, nil
}

func (u *UserStore) Count(_ context.Context) (int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return len(u.s.users), nil
}

func (u *UserStore) SetRoles(_ context.Context, userID string, roleIDs []string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[userID]; !ok {
		return model.ErrUserNotFound
	}
	roleIDs = cleanIDs(roleIDs)
	if err := u.s.checkIDsLocked("role_ids", roleIDs, func(id string) bool { _, ok := u.s.roles[id]; return ok }); err != nil {
		return err
	}
	u.s.userRoles[userID] = newSet(roleIDs)
	return nil
}

func (u *UserStore) SetPermissions(_ context.Context, userID string, permissionIDs []string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[userID]; !ok {
		return model.ErrUserNotFound
	}
	permissionIDs = cleanIDs(permissionIDs)
	if err := u.s.checkIDsLocked("permission_ids", permissionIDs, func(id string) bool { _, ok := u.s.permissions[id]; return ok }); err != nil {
		return err
	}
	u.s.userPerms[userID] = newSet(permissionIDs)
	return nil
}

type RoleStore struct{ s *Store }

func (r *RoleStore) Create(_ context.Context, role model.Role, permissionIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	permissionIDs = cleanIDs(permissionIDs)
	if err := r.s.checkIDsLocked("permission_ids", permissionIDs, func(id string) bool { _, ok := r.s.permissions[id]; return ok }); err != nil {
		return err
	}
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return &model.ConflictError{Field: "name", Value: role.Name}
		}
	}
	role.Permissions = nil
	r.s.roles[role.ID] = role
	r.s.rolePerms[role.ID] = newSet(permissionIDs)
	return nil
}

func (r *RoleStore) FindByID(_ context.Context, id string) (model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return model.Role{}, model.ErrRoleNotFound
	}
	return r.s.roleLocked(id), nil
}

func (r *RoleStore) FindByName(_ context.Context, name string) (model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, role := range r.s.roles {
		if role.Name == name {
			return r.s.roleLocked(id), nil
		}
	}
	return model.Role{}, model.ErrRoleNotFound
}

func (r *RoleStore) List(_ context.Context) ([]model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make(set, len(r.s.roles))
	for id := range r.s.roles {
		ids[id] = struct{}{}
	}
	return r.s.rolesLocked(ids), nil
}

func (r *RoleStore) ListByUser(_ context.Context, userID string) ([]model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.rolesLocked(r.s.userRoles[userID]), nil
}

func (s *Store) rolesLocked(ids set) []model.Role {
	out := make([]model.Role, 0, len(ids))
	for id := range ids {
		if _, ok := s.roles[id]; ok {
			out = append(out, s.roleLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *RoleStore) NameTaken(_ context.Context, name string, excludeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, role := range r.s.roles {
		if id != excludeID && role.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *RoleStore) Update(_ context.Context, id string, update model.RoleUpdate, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	role, ok := r.s.roles[id]
	if !ok {
		return model.ErrRoleNotFound
	}

	var ids []string
	if update.PermissionIDs != nil {
		ids = cleanIDs(*update.PermissionIDs)
		if err := r.s.checkIDsLocked("permission_ids", ids, func(id string) bool { _, ok := r.s.permissions[id]; return ok }); err != nil {
			return err
		}
	}
	if update.Name != nil {
		for otherID, other := range r.s.roles {
			if otherID != id && other.Name == *update.Name {
				return &model.ConflictError{Field: "name", Value: *update.Name}
			}
		}
		role.Name = *update.Name
	}

	role.UpdatedAt = now
	r.s.roles[id] = role
	if update.PermissionIDs != nil {
		r.s.rolePerms[id] = newSet(ids)
	}
	return nil
}

func (r *RoleStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.roles[id]; !ok {
		return model.ErrRoleNotFound
	}
	delete(r.s.roles, id)
	delete(r.s.rolePerms, id)
	for _, bound := range r.s.userRoles {
		delete(bound, id)
	}
	return nil
}

type PermissionStore struct{ s *Store }

func (p *PermissionStore) Create(_ context.Context, perm model.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.permissionByNameLocked(perm.Name); ok {
		return &model.ConflictError{Field: "name", Value: perm.Name}
	}
	p.s.permissions[perm.ID] = perm
	return nil
}

func (p *PermissionStore) FindByID(_ context.Context, id string) (model.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	perm, ok := p.s.permissions[id]
	if !ok {
		return model.Permission{}, model.ErrPermissionNotFound
	}
	return perm, nil
}

func (p *PermissionStore) List(_ context.Context) ([]model.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	ids := make(set, len(p.s.permissions))
	for id := range p.s.permissions {
		ids[id] = struct{}{}
	}
	return p.s.permissionsLocked(ids), nil
}

func (p *PermissionStore) ListByUser(_ context.Context, userID string) ([]model.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.permissionsLocked(p.s.userPerms[userID]), nil
}

func (p *PermissionStore) NameTaken(_ context.Context, name string, excludeID string) (bool, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for id, perm := range p.s.permissions {
		if id != excludeID && perm.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (p *PermissionStore) Rename(_ context.Context, id string, name string, now time.Time) (model.Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	perm, ok := p.s.permissions[id]
	if !ok {
		return model.Permission{}, model.ErrPermissionNotFound
	}
	if other, taken := p.s.permissionByNameLocked(name); taken && other.ID != id {
		return model.Permission{}, &model.ConflictError{Field: "name", Value: name}
	}
	perm.Name = name
	perm.UpdatedAt = now
	p.s.permissions[id] = perm
	return perm, nil
}

func (p *PermissionStore) Delete(_ context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.permissions[id]; !ok {
		return model.ErrPermissionNotFound
	}
	delete(p.s.permissions, id)
	for _, bound := range p.s.rolePerms {
		delete(bound, id)
	}
	for _, bound := range p.s.userPerms {
		delete(bound, id)
	}
	return nil
}

type SessionStore struct{ s *Store }

func (ss *SessionStore) Create(_ context.Context, sess model.Session) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if ss.s.SessionCreateErr != nil {
		return ss.s.SessionCreateErr
	}
	if _, ok := ss.s.users[sess.UserID]; !ok {
		return model.ErrUserNotFound
	}
	ss.s.sessions[sess.ID] = sess
	return nil
}

func (ss *SessionStore) FindByID(_ context.Context, id string) (model.Session, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	sess, ok := ss.s.sessions[id]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return sess, nil
}

func (ss *SessionStore) Revoke(_ context.Context, id string, at time.Time) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	sess, ok := ss.s.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	if sess.RevokedAt == nil {
		sess.RevokedAt = &at
		ss.s.sessions[id] = sess
	}
	return nil
}

func (ss *SessionStore) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	sess, ok := ss.s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	sess.RevokedAt = &at
	ss.s.sessions[id] = sess
	return true, nil
}

func (ss *SessionStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var n int64
	for id, sess := range ss.s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
			ss.s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

func (ss *SessionStore) Delete(_ context.Context, id string) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	delete(ss.s.sessions, id)
	return nil
}

func (ss *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var n int64
	for id, sess := range ss.s.sessions {
		spent := !now.Before(sess.RefreshExpiresAt)
		revokedAndOld := sess.RevokedAt != nil && !now.Before(sess.ExpiresAt)
		if spent || revokedAndOld {
			delete(ss.s.sessions, id)
			n++
		}
	}
	return n, nil
}

type ResetStore struct{ s *Store }

func (r *ResetStore) Upsert(_ context.Context, rec model.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.resets[rec.Email] = rec
	return nil
}

func (r *ResetStore) Find(_ context.Context, email string) (model.PasswordReset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.resets[email]
	if !ok {
		return model.PasswordReset{}, model.ErrResetNotFound
	}
	return rec, nil
}

func (r *ResetStore) Delete(_ context.Context, email string, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.resets[email]
	if !ok || (tokenHash != "" && rec.TokenHash != tokenHash) {
		return false, nil
	}
	delete(r.s.resets, email)
	return true, nil
}

func (r *ResetStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for email, rec := range r.s.resets {
		if rec.CreatedAt.Before(cutoff) {
			delete(r.s.resets, email)
			n++
		}
	}
	return n, nil
}

// Notifier records reset notifications. Err, when set, is returned from every send.
type Notifier struct {
	mu   sync.Mutex
	sent []model.ResetNotification
	Err  error
}

func (n *Notifier) SendPasswordReset(_ context.Context, msg model.ResetNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.Err
}

func (n *Notifier) Sent() []model.ResetNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.ResetNotification(nil), n.sent...)
}

var ErrStoreDown = errors.New("store unavailable")
