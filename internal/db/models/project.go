// Package models - project.go defines the Project model owned by an organization.
package models

import "time"

// Project statuses.
const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// Project is a building project within an organization. Files, chats, LCA
// snapshots, and location snapshots are all scoped to a project.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Address        string    `json:"address"`
	Status         string    `json:"status"`
	CreatedBy      *string   `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
