// audit_repository.go implements AuditRepository, recording and listing audit
// trail entries for mutating API actions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grooshub/grooshub/internal/db/models"
)

// AuditRepository handles database operations for audit logs
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create records an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, organization_id, action, resource, resource_id, status_code, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.OrganizationID,
		entry.Action,
		entry.Resource,
		entry.ResourceID,
		entry.StatusCode,
		entry.RequestID,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// ListByOrganization retrieves a paginated audit trail for an organization
func (r *AuditRepository) ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, organization_id, action, resource, resource_id, status_code, request_id, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry := &models.AuditLog{}
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.OrganizationID,
			&entry.Action,
			&entry.Resource,
			&entry.ResourceID,
			&entry.StatusCode,
			&entry.RequestID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteOlderThan prunes audit entries older than the given interval. Returns
// the number of rows removed.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, olderThan string) (int64, error) {
	query := `DELETE FROM audit_logs WHERE created_at < NOW() - $1::interval`
	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}

	return affected, nil
}
