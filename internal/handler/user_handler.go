package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
)

type UserHandler struct {
	credentials *service.CredentialService
	rbac        *service.RBACService
}

func NewUserHandler(credentials *service.CredentialService, rbac *service.RBACService) *UserHandler {
	return &UserHandler{credentials: credentials, rbac: rbac}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	users, meta, err := h.credentials.ListUsers(r.Context(), model.UserListQuery{
		Search: query.Get("search"),
		Page:   parseIntOrDefault(query.Get("page"), 1),
		Limit:  parseIntOrDefault(query.Get("limit"), 25),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.UserList{Users: users}, &meta)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.CreateUserRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.credentials.CreateUser(r.Context(), session.User.ID, model.CreateUserInput{
		Name:          payload.Name,
		Email:         payload.Email,
		Password:      payload.Password,
		Status:        payload.Status,
		RoleIDs:       payload.RoleIDs,
		PermissionIDs: payload.PermissionIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.writeDetail(w, r, http.StatusCreated, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.credentials.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.writeDetail(w, r, http.StatusOK, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.UpdateUserRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.credentials.UpdateUser(r.Context(), session.User.ID, chi.URLParam(r, "id"), model.UserUpdate{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		Status:   payload.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.writeDetail(w, r, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.credentials.DeleteUser(r.Context(), session.User.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "User deleted successfully"}, nil)
}

func (h *UserHandler) SyncRoles(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.SyncIDsRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	roles, err := h.rbac.AssignRolesToUser(r.Context(), session.User.ID, chi.URLParam(r, "id"), payload.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.RoleList{Roles: roles}, nil)
}

func (h *UserHandler) SyncPermissions(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.SyncIDsRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	permissions, err := h.rbac.AssignPermissionsToUser(r.Context(), session.User.ID, chi.URLParam(r, "id"), payload.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PermissionList{Permissions: permissions}, nil)
}

// EffectivePermissions lists direct and role-derived permissions together.
func (h *UserHandler) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	user, err := h.credentials.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	permissions, err := h.rbac.EffectivePermissions(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PermissionList{Permissions: permissions}, nil)
}

func (h *UserHandler) writeDetail(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	roles, err := h.rbac.UserRoles(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	permissions, err := h.rbac.DirectPermissions(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, status, model.UserDetail{User: user, Roles: roles, Permissions: permissions}, nil)
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
