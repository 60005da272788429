// invitation_repository.go implements InvitationRepository, providing database
// queries for organization invitations and their single-use tokens.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grooshub/grooshub/internal/db/models"
)

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db *sql.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sql.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, accepted_at, expires_at, created_at
		FROM invitations
		WHERE id = $1
	`

	inv := &models.Invitation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.Email,
		&inv.Role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.AcceptedAt,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// GetByToken retrieves an invitation by its opaque token
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, accepted_at, expires_at, created_at
		FROM invitations
		WHERE token = $1
	`

	inv := &models.Invitation{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.Email,
		&inv.Role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.AcceptedAt,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}

	return inv, nil
}

// Create creates a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (organization_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.Token,
		inv.InvitedBy,
		inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// MarkAccepted stamps the invitation as used
func (r *InvitationRepository) MarkAccepted(ctx context.Context, id string) error {
	query := `UPDATE invitations SET accepted_at = NOW() WHERE id = $1 AND accepted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check invitation update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invitation already accepted")
	}

	return nil
}

// Delete revokes an invitation
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM invitations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	return nil
}

// ListByOrganization retrieves all invitations for an organization
func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, accepted_at, expires_at, created_at
		FROM invitations
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]*models.Invitation, 0)
	for rows.Next() {
		inv := &models.Invitation{}
		err := rows.Scan(
			&inv.ID,
			&inv.OrganizationID,
			&inv.Email,
			&inv.Role,
			&inv.Token,
			&inv.InvitedBy,
			&inv.AcceptedAt,
			&inv.ExpiresAt,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// DeleteExpired removes expired, unaccepted invitations. Returns the number of
// rows removed. Called by the background cleanup job.
func (r *InvitationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at < NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted invitations: %w", err)
	}

	return affected, nil
}
