// lca_repository.go implements LCARepository, providing sqlx-backed queries for
// impact factors, assessment snapshots, and material elements.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/grooshub/grooshub/internal/db/models"
)

// LCARepository handles database operations for life-cycle assessments
type LCARepository struct {
	db *sqlx.DB
}

// NewLCARepository creates a new LCA repository. It wraps the shared *sql.DB
// so snapshot rows scan straight into tagged structs.
func NewLCARepository(db *sql.DB) *LCARepository {
	return &LCARepository{db: sqlx.NewDb(db, "postgres")}
}

// === Impact Factors ===

// ListImpactFactors retrieves the full impact factor reference table
func (r *LCARepository) ListImpactFactors(ctx context.Context) ([]*models.ImpactFactor, error) {
	factors := make([]*models.ImpactFactor, 0)
	query := `
		SELECT id, material, category, unit, shadow_cost_per_unit, gwp_per_unit, lifespan_years, created_at
		FROM lca_impact_factors
		ORDER BY category, material
	`

	if err := r.db.SelectContext(ctx, &factors, query); err != nil {
		return nil, fmt.Errorf("failed to list impact factors: %w", err)
	}

	return factors, nil
}

// GetImpactFactor retrieves a single impact factor by material key
func (r *LCARepository) GetImpactFactor(ctx context.Context, material string) (*models.ImpactFactor, error) {
	factor := &models.ImpactFactor{}
	query := `
		SELECT id, material, category, unit, shadow_cost_per_unit, gwp_per_unit, lifespan_years, created_at
		FROM lca_impact_factors
		WHERE material = $1
	`

	if err := r.db.GetContext(ctx, factor, query, material); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get impact factor: %w", err)
	}

	return factor, nil
}

// UpsertImpactFactor inserts or updates a reference row. Admin-only.
func (r *LCARepository) UpsertImpactFactor(ctx context.Context, factor *models.ImpactFactor) error {
	query := `
		INSERT INTO lca_impact_factors (material, category, unit, shadow_cost_per_unit, gwp_per_unit, lifespan_years)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (material)
		DO UPDATE SET category = EXCLUDED.category,
		              unit = EXCLUDED.unit,
		              shadow_cost_per_unit = EXCLUDED.shadow_cost_per_unit,
		              gwp_per_unit = EXCLUDED.gwp_per_unit,
		              lifespan_years = EXCLUDED.lifespan_years
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		factor.Material,
		factor.Category,
		factor.Unit,
		factor.ShadowCostPerUnit,
		factor.GWPPerUnit,
		factor.LifespanYears,
	).Scan(&factor.ID, &factor.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert impact factor: %w", err)
	}

	return nil
}

// === Snapshots ===

// GetSnapshot retrieves a snapshot by ID
func (r *LCARepository) GetSnapshot(ctx context.Context, id string) (*models.LCASnapshot, error) {
	snapshot := &models.LCASnapshot{}
	query := `
		SELECT id, project_id, name, gross_floor_area, study_period_years,
		       mpg_score, total_shadow_cost, total_gwp, category_breakdown, computed_at,
		       created_at, updated_at
		FROM lca_snapshots
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, snapshot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return snapshot, nil
}

// CreateSnapshot creates a new, not-yet-computed snapshot
func (r *LCARepository) CreateSnapshot(ctx context.Context, snapshot *models.LCASnapshot) error {
	query := `
		INSERT INTO lca_snapshots (project_id, name, gross_floor_area, study_period_years)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		snapshot.ProjectID,
		snapshot.Name,
		snapshot.GrossFloorArea,
		snapshot.StudyPeriodYears,
	).Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

// UpdateSnapshot updates the snapshot's input parameters and clears any stale
// computed results.
func (r *LCARepository) UpdateSnapshot(ctx context.Context, snapshot *models.LCASnapshot) error {
	query := `
		UPDATE lca_snapshots
		SET name = $2, gross_floor_area = $3, study_period_years = $4,
		    mpg_score = NULL, total_shadow_cost = NULL, total_gwp = NULL,
		    category_breakdown = NULL, computed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.Name,
		snapshot.GrossFloorArea,
		snapshot.StudyPeriodYears,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}

	return nil
}

// StoreResults writes the computed assessment onto a snapshot
func (r *LCARepository) StoreResults(ctx context.Context, id string, mpg, totalShadowCost, totalGWP float64, categoryBreakdown []byte) error {
	query := `
		UPDATE lca_snapshots
		SET mpg_score = $2, total_shadow_cost = $3, total_gwp = $4,
		    category_breakdown = $5, computed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, mpg, totalShadowCost, totalGWP, categoryBreakdown)
	if err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}

	return nil
}

// DeleteSnapshot removes a snapshot and its elements
func (r *LCARepository) DeleteSnapshot(ctx context.Context, id string) error {
	query := `DELETE FROM lca_snapshots WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// ListSnapshotsByProject retrieves all snapshots for a project, newest first
func (r *LCARepository) ListSnapshotsByProject(ctx context.Context, projectID string) ([]*models.LCASnapshot, error) {
	snapshots := make([]*models.LCASnapshot, 0)
	query := `
		SELECT id, project_id, name, gross_floor_area, study_period_years,
		       mpg_score, total_shadow_cost, total_gwp, category_breakdown, computed_at,
		       created_at, updated_at
		FROM lca_snapshots
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	if err := r.db.SelectContext(ctx, &snapshots, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return snapshots, nil
}

// === Elements ===

// ReplaceElements swaps a snapshot's material bill in one transaction and
// clears any computed results that no longer match the inputs.
func (r *LCARepository) ReplaceElements(ctx context.Context, snapshotID string, elements []*models.LCAElement) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lca_elements WHERE snapshot_id = $1`, snapshotID); err != nil {
		return fmt.Errorf("failed to clear elements: %w", err)
	}

	insert := `
		INSERT INTO lca_elements (snapshot_id, material, category, quantity, unit)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, el := range elements {
		if _, err := tx.ExecContext(ctx, insert, snapshotID, el.Material, el.Category, el.Quantity, el.Unit); err != nil {
			return fmt.Errorf("failed to insert element: %w", err)
		}
	}

	reset := `
		UPDATE lca_snapshots
		SET mpg_score = NULL, total_shadow_cost = NULL, total_gwp = NULL,
		    category_breakdown = NULL, computed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, reset, snapshotID); err != nil {
		return fmt.Errorf("failed to reset snapshot results: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit elements: %w", err)
	}

	return nil
}

// ListElements retrieves the material bill for a snapshot
func (r *LCARepository) ListElements(ctx context.Context, snapshotID string) ([]*models.LCAElement, error) {
	elements := make([]*models.LCAElement, 0)
	query := `
		SELECT id, snapshot_id, material, category, quantity, unit, created_at
		FROM lca_elements
		WHERE snapshot_id = $1
		ORDER BY created_at ASC
	`

	if err := r.db.SelectContext(ctx, &elements, query, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to list elements: %w", err)
	}

	return elements, nil
}
