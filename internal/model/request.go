package model

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=6,maxbytes=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword         string `json:"current_password" validate:"required"`
	NewPassword             string `json:"new_password" validate:"required,min=6,maxbytes=72"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetConfirmRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,min=6,maxbytes=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type CreateRoleRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	PermissionIDs []string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

type UpdateRoleRequest struct {
	Name          *string   `json:"name" validate:"omitempty,min=1,max=255"`
	PermissionIDs *[]string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

type PermissionRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type SyncIDsRequest struct {
	IDs []string `json:"ids" validate:"required,dive,uuid"`
}

type CreateUserRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	Email         string   `json:"email" validate:"required,email,max=255"`
	Password      string   `json:"password" validate:"required,min=8,maxbytes=72"`
	Status        string   `json:"status" validate:"omitempty,oneof=active inactive"`
	RoleIDs       []string `json:"role_ids" validate:"omitempty,dive,uuid"`
	PermissionIDs []string `json:"permission_ids" validate:"omitempty,dive,uuid"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password" validate:"omitempty,min=8,maxbytes=72"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive"`
}
