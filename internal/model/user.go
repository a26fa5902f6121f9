package model

import "time"

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// UserUpdate enumerates the fields an administrator may change. Nil means unchanged.
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
	Status   *string
}

func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Password == nil && u.Status == nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type CreateUserInput struct {
	Name          string
	Email         string
	Password      string
	Status        string
	RoleIDs       []string
	PermissionIDs []string
}

type UserListQuery struct {
	Search string
	Page   int
	Limit  int
}

// Profile is a user together with the names it is authorised under at read time.
type Profile struct {
	User        User     `json:"user"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type UserList struct {
	Users []User `json:"users"`
}

// UserPatch is the storage-level form of UserUpdate, with the password already hashed.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Status       *string
}

// UserDetail is a user with its bindings, as shown to administrators.
type UserDetail struct {
	User
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}
