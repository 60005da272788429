// Package models - user.go defines the User model for password and OIDC accounts.
package models

import "time"

// User represents a registered account. PasswordHash is nil for accounts
// provisioned through OIDC single sign-on.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash *string    `json:"-"`
	OIDCSub      *string    `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
