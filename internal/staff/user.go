// Package staff manages clinic dashboard users and their session tokens.
package staff

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretaria"
)

var (
	ErrUserNotFound       = errors.New("staff: user not found")
	ErrEmailTaken         = errors.New("staff: email already registered")
	ErrInvalidCredentials = errors.New("staff: invalid credentials")
	ErrSigningDisabled    = errors.New("staff: token signing secret not configured")
)

// User is a dashboard account scoped to one tenant.
type User struct {
	ID           int64     `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"rol"`
	Active       bool      `json:"activo"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser is the input for account creation.
type NewUser struct {
	TenantID string
	Name     string
	Email    string
	Password string
	Role     Role
}

// Claims are carried by dashboard session tokens.
type Claims struct {
	UserID   int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"nombre"`
	Role     Role   `json:"rol"`
	TenantID string `json:"clienteId"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
