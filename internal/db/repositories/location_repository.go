// location_repository.go implements LocationRepository, providing sqlx-backed
// queries for geocoded project location snapshots.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/grooshub/grooshub/internal/db/models"
)

// LocationRepository handles database operations for location snapshots
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: sqlx.NewDb(db, "postgres")}
}

// GetByID retrieves a location snapshot by ID
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*models.LocationSnapshot, error) {
	snapshot := &models.LocationSnapshot{}
	query := `
		SELECT id, project_id, label, display_name, latitude, longitude, amenities, created_at
		FROM location_snapshots
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, snapshot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get location snapshot: %w", err)
	}

	return snapshot, nil
}

// Create stores a new location snapshot
func (r *LocationRepository) Create(ctx context.Context, snapshot *models.LocationSnapshot) error {
	query := `
		INSERT INTO location_snapshots (project_id, label, display_name, latitude, longitude, amenities)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		snapshot.ProjectID,
		snapshot.Label,
		snapshot.DisplayName,
		snapshot.Latitude,
		snapshot.Longitude,
		snapshot.Amenities,
	).Scan(&snapshot.ID, &snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create location snapshot: %w", err)
	}

	return nil
}

// Delete removes a location snapshot
func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM location_snapshots WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete location snapshot: %w", err)
	}

	return nil
}

// ListByProject retrieves all location snapshots for a project, newest first
func (r *LocationRepository) ListByProject(ctx context.Context, projectID string) ([]*models.LocationSnapshot, error) {
	snapshots := make([]*models.LocationSnapshot, 0)
	query := `
		SELECT id, project_id, label, display_name, latitude, longitude, amenities, created_at
		FROM location_snapshots
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	if err := r.db.SelectContext(ctx, &snapshots, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list location snapshots: %w", err)
	}

	return snapshots, nil
}
