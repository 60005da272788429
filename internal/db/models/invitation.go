// Package models - invitation.go defines the Invitation model for adding users to
// organizations by email with a single-use, expiring token.
package models

import "time"

// Invitation invites an email address into an organization. The raw token is
// only ever returned once, at creation time.
type Invitation struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	Token          string     `json:"-"`
	InvitedBy      string     `json:"invited_by"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsExpired reports whether the invitation can no longer be accepted.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation has already been used.
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}
