// Package models - audit_log.go defines the AuditLog model recording mutating
// API actions for traceability.
package models

import "time"

// AuditLog is one recorded mutation. UserID/OrganizationID are nullable
// because some audited actions (e.g. invitation acceptance by a new user)
// happen before both identities exist.
type AuditLog struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id,omitempty"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Action         string    `json:"action"`
	Resource       string    `json:"resource"`
	ResourceID     string    `json:"resource_id"`
	StatusCode     int       `json:"status_code"`
	RequestID      string    `json:"request_id"`
	CreatedAt      time.Time `json:"created_at"`
}
