package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
)

type PermissionHandler struct {
	rbac *service.RBACService
}

func NewPermissionHandler(rbac *service.RBACService) *PermissionHandler {
	return &PermissionHandler{rbac: rbac}
}

func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.rbac.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PermissionList{Permissions: permissions}, nil)
}

func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.PermissionRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	permission, err := h.rbac.CreatePermission(r.Context(), session.User.ID, payload.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, permission, nil)
}

func (h *PermissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	permission, err := h.rbac.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, permission, nil)
}

func (h *PermissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.PermissionRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	permission, err := h.rbac.UpdatePermission(r.Context(), session.User.ID, chi.URLParam(r, "id"), payload.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, permission, nil)
}

func (h *PermissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.rbac.DeletePermission(r.Context(), session.User.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Permission deleted successfully"}, nil)
}
