package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go-rbac-auth/internal/model"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	v := New()

	tests := []struct {
		name   string
		input  any
		fields map[string]string
	}{
		{
			name: "valid registration",
			input: model.RegisterRequest{
				Name: "Ada", Email: "ada@example.com", Password: "secret1", PasswordConfirmation: "secret1",
			},
		},
		{
			name: "missing fields use json names",
			input: model.RegisterRequest{
				Password: "secret1", PasswordConfirmation: "secret1",
			},
			fields: map[string]string{
				"name":  "This field is required",
				"email": "This field is required",
			},
		},
		{
			name: "confirmation mismatch",
			input: model.RegisterRequest{
				Name: "Ada", Email: "ada@example.com", Password: "secret1", PasswordConfirmation: "secret2",
			},
			fields: map[string]string{"password_confirmation": "Must match password"},
		},
		{
			name: "short password and bad email",
			input: model.RegisterRequest{
				Name: "Ada", Email: "nope", Password: "abc", PasswordConfirmation: "abc",
			},
			fields: map[string]string{
				"email":    "Must be a valid email address",
				"password": "Must be at least 6 characters long",
			},
		},
		{
			name: "multibyte password over 72 bytes",
			input: model.RegisterRequest{
				Name: "Ada", Email: "ada@example.com",
				Password: strings.Repeat("é", 40), PasswordConfirmation: strings.Repeat("é", 40),
			},
			fields: map[string]string{"password": "Must be at most 72 bytes long"},
		},
		{
			name: "multibyte password at 72 bytes",
			input: model.RegisterRequest{
				Name: "Ada", Email: "ada@example.com",
				Password: strings.Repeat("é", 36), PasswordConfirmation: strings.Repeat("é", 36),
			},
		},
		{
			name:   "status outside enum",
			input:  model.CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "longenough", Status: "banned"},
			fields: map[string]string{"status": "Must be one of: active, inactive"},
		},
		{
			name:   "ids must be uuids",
			input:  model.SyncIDsRequest{IDs: []string{"0b0f5b8e-6f2a-4a55-9c55-2b3d7a1c9e10", "nope"}},
			fields: map[string]string{"ids[1]": "Must be a valid UUID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}

			var validation *model.ValidationError
			require.True(t, errors.As(err, &validation))
			require.Equal(t, tt.fields, validation.Fields)
			require.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}
