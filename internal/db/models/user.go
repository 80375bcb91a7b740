// Package models - user.go defines the User model for dashboard accounts with
// email, display name, role, and activation state.
package models

import "time"

// User roles. Admins can manage other users and trigger jobs; viewers only
// read hospital and pricing data.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// User represents a dashboard account.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Role         string     `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	APIKeyHash   *string    `json:"-" db:"api_key_hash"`                          // bcrypt hash; raw key is shown once at generation
	APIKeyPrefix *string    `json:"api_key_prefix,omitempty" db:"api_key_prefix"` // first characters of the key, for indexed lookup and display
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// ValidRole reports whether role is one of the known role constants.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}
