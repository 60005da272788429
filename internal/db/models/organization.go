// Package models - organization.go defines the Organization model representing a tenant
// namespace with memberships, and the membership roles used for authorization checks.
package models

import "time"

// Membership roles, ordered by privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization represents a tenant in GroosHub. All projects, files, and AI
// usage accounting hang off an organization.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`         // URL-safe name
	DisplayName string `json:"display_name"` // Human-readable display name

	// AIAPIKeyEncrypted holds an optional bring-your-own provider key,
	// AES-GCM encrypted at rest. Never serialized.
	AIAPIKeyEncrypted *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// OrganizationMemberWithUser is a membership row joined with user details for
// member listings.
type OrganizationMemberWithUser struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UserName       string    `json:"user_name"`
	UserEmail      string    `json:"user_email"`
}

// RoleAtLeast reports whether role grants at least the privileges of required.
func RoleAtLeast(role, required string) bool {
	rank := map[string]int{RoleMember: 1, RoleAdmin: 2, RoleOwner: 3}
	return rank[role] >= rank[required]
}
