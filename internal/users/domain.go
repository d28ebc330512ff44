package users

import (
	"time"

	"github.com/fieldops/fieldops/internal/rbac"
)

// Account is a user account as listed by the management endpoints.
type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PermissionView describes how a user's effective permissions are composed.
type PermissionView struct {
	UserID    int64    `json:"user_id"`
	Role      string   `json:"role"`
	Defaults  []string `json:"defaults"`
	Overrides []string `json:"overrides"`
	Revoked   []string `json:"revoked"`
	Effective []string `json:"effective"`
}

// PermissionUpdate replaces a user's overrides.
type PermissionUpdate struct {
	Granted []string `json:"granted" validate:"dive,required"`
	Revoked []string `json:"revoked" validate:"dive,required"`
}

// RoleUpdate changes a user's role.
type RoleUpdate struct {
	Role string `json:"role" validate:"required"`
}

// PermissionInfo is one entry of the permission catalogue.
type PermissionInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// RoleInfo lists a role with its default permissions.
type RoleInfo struct {
	Role     string   `json:"role"`
	Label    string   `json:"label"`
	Defaults []string `json:"defaults"`
}

// Catalogue feeds the admin permission editor.
type Catalogue struct {
	Permissions []PermissionInfo `json:"permissions"`
	Roles       []RoleInfo       `json:"roles"`
}
