package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"go-rbac-auth/internal/logger"
	"go-rbac-auth/internal/middleware"
	"go-rbac-auth/internal/model"
	"go-rbac-auth/internal/validator"
	"go-rbac-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 20

var (
	debug    atomic.Bool
	validate = validator.New()
)

// SetDebug controls whether internal error text is returned in the details field.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var validationErr *model.ValidationError
	var conflictErr *model.ConflictError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		body.Fields = apiErr.Fields
	case errors.As(err, &validationErr):
		status = http.StatusUnprocessableEntity
		body.Code = "VALIDATION_ERROR"
		body.Message = "The given data was invalid"
		body.Fields = validationErr.Fields
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "The " + conflictErr.Field + " has already been taken"
		body.Fields = map[string]string{conflictErr.Field: "Already taken"}
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
	case errors.Is(err, model.ErrInvalidToken),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenRevoked),
		errors.Is(err, model.ErrUserInactive),
		errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Unauthenticated."
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "You do not have permission to perform this action."
	case errors.Is(err, model.ErrCurrentPasswordMismatch):
		status = http.StatusUnprocessableEntity
		body.Code = "VALIDATION_ERROR"
		body.Message = "The given data was invalid"
		body.Fields = map[string]string{"current_password": "The current password is incorrect"}
	case errors.Is(err, model.ErrSamePassword):
		status = http.StatusUnprocessableEntity
		body.Code = "VALIDATION_ERROR"
		body.Message = "The given data was invalid"
		body.Fields = map[string]string{"new_password": "Must differ from the current password"}
	case errors.Is(err, model.ErrResetTokenExpired):
		status = http.StatusBadRequest
		body.Code = "RESET_TOKEN_EXPIRED"
		body.Message = "The reset token has expired"
	case errors.Is(err, model.ErrResetTokenInvalid), errors.Is(err, model.ErrResetNotFound):
		status = http.StatusBadRequest
		body.Code = "INVALID_RESET_TOKEN"
		body.Message = "Invalid or expired reset token"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrRoleNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Role not found"
	case errors.Is(err, model.ErrPermissionNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Permission not found"
	case errors.Is(err, model.ErrSessionNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Session not found"
	case errors.Is(err, model.ErrDuplicate):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "Resource already exists"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	default:
		log := slog.Default()
		if r != nil {
			log = logger.FromContext(r.Context())
		}
		log.Error("unhandled error", "error", err)
		if debug.Load() {
			body.Details = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// bind decodes a JSON body into dst and validates it.
func bind(r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is required", "")
		}
		return apierror.BadRequest("invalid JSON body", "")
	}

	return validate.Validate(dst)
}

func clientInfo(r *http.Request) model.ClientInfo {
	return model.ClientInfo{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	}
}

func authSession(r *http.Request) (model.AuthSession, error) {
	session, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		return model.AuthSession{}, model.ErrUnauthorized
	}
	return session, nil
}
