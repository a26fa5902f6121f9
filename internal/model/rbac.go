package model

import "time"

const DefaultRoleName = "viewer"

type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleUpdate enumerates mutable role fields. A non-nil PermissionIDs replaces the whole set.
type RoleUpdate struct {
	Name          *string
	PermissionIDs *[]string
}

// Requirement is satisfied when the user holds any listed role or any listed permission.
type Requirement struct {
	Roles       []string
	Permissions []string
}

func (r Requirement) IsEmpty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

type RoleList struct {
	Roles []Role `json:"roles"`
}

type PermissionList struct {
	Permissions []Permission `json:"permissions"`
}
