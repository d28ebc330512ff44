package auth

import (
	"errors"
	"time"

	"github.com/fieldops/fieldops/internal/rbac"
)

// ErrInvalidCredentials is returned for any failed login, whatever the cause.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// User represents an account as seen by the login flow.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginUser is the identity echoed back after login.
type LoginUser struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      LoginUser `json:"user"`
}

// Me describes the current caller.
type Me struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	RoleLabel   string   `json:"role_label"`
	Permissions []string `json:"permissions"`
}
