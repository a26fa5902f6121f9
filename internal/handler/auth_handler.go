package handler

import (
	"net/http"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
)

type AuthHandler struct {
	auth        *service.AuthService
	credentials *service.CredentialService
}

func NewAuthHandler(auth *service.AuthService, credentials *service.CredentialService) *AuthHandler {
	return &AuthHandler{auth: auth, credentials: credentials}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.credentials.Register(r.Context(), model.RegisterInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
	}, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), payload.Email, payload.Password, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), payload.RefreshToken, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.auth.Logout(r.Context(), session); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Logged out successfully"}, nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	revoked, err := h.auth.LogoutAll(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "Logged out from all sessions",
		"revoked": revoked,
	}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := h.auth.Me(r.Context(), session.User)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, profile, nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, err := authSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.ChangePasswordRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.credentials.ChangePassword(r.Context(), session.User, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password changed successfully. Please log in again."}, nil)
}
