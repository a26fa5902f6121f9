package handler

import (
	"net/http"

	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/service"
)

type PasswordHandler struct {
	resets *service.ResetService
}

func NewPasswordHandler(resets *service.ResetService) *PasswordHandler {
	return &PasswordHandler{resets: resets}
}

// RequestReset answers identically whether or not the email is registered.
func (h *PasswordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetRequestRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.resets.RequestReset(r.Context(), payload.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *PasswordHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetConfirmRequest
	if err := bind(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.resets.ConfirmReset(r.Context(), model.ResetConfirmInput{
		Email:       payload.Email,
		Token:       payload.Token,
		NewPassword: payload.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password has been reset successfully"}, nil)
}
