package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
)

type RoleHandler struct {
	rbac *service.RBACService
}

func NewRoleHandler(rbac *service.RBACService) *RoleHandler {
	return &RoleHandler{rbac: rbac}
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbac.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.RoleList{Roles: roles}, nil)
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.CreateRoleRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.rbac.CreateRole(r.Context(), session.User.ID, payload.Name, payload.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, role, nil)
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.UpdateRoleRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	role, err := h.rbac.UpdateRole(r.Context(), session.User.ID, chi.URLParam(r, "id"), model.RoleUpdate{
		Name:          payload.Name,
		PermissionIDs: payload.PermissionIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

// SyncPermissions replaces the role's permissions with the given ids.
func (h *RoleHandler) SyncPermissions(w http.ResponseWriter, r *http.Request) {
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

	role, err := h.rbac.SyncRolePermissions(r.Context(), session.User.ID, chi.URLParam(r, "id"), payload.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.rbac.DeleteRole(r.Context(), session.User.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Role deleted successfully"}, nil)
}
