// Package models - lca.go defines the life-cycle-assessment models: impact
// factors, snapshots, and material elements. These carry db tags because the
// LCA repository scans them through sqlx.
package models

import "time"

// ImpactFactor is a per-material environmental cost reference row. Shadow cost
// is the monetised environmental damage per unit of material (euros), the
// basis of the Dutch MPG metric.
type ImpactFactor struct {
	ID                string    `db:"id" json:"id"`
	Material          string    `db:"material" json:"material"`
	Category          string    `db:"category" json:"category"`
	Unit              string    `db:"unit" json:"unit"`
	ShadowCostPerUnit float64   `db:"shadow_cost_per_unit" json:"shadow_cost_per_unit"`
	GWPPerUnit        float64   `db:"gwp_per_unit" json:"gwp_per_unit"`
	LifespanYears     int       `db:"lifespan_years" json:"lifespan_years"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// LCASnapshot is one computed (or not-yet-computed) assessment of a project's
// material bill. Result fields are nil until Compute has run.
type LCASnapshot struct {
	ID               string  `db:"id" json:"id"`
	ProjectID        string  `db:"project_id" json:"project_id"`
	Name             string  `db:"name" json:"name"`
	GrossFloorArea   float64 `db:"gross_floor_area" json:"gross_floor_area"`
	StudyPeriodYears int     `db:"study_period_years" json:"study_period_years"`

	MPGScore          *float64   `db:"mpg_score" json:"mpg_score,omitempty"`
	TotalShadowCost   *float64   `db:"total_shadow_cost" json:"total_shadow_cost,omitempty"`
	TotalGWP          *float64   `db:"total_gwp" json:"total_gwp,omitempty"`
	CategoryBreakdown []byte     `db:"category_breakdown" json:"-"` // raw JSONB; decoded by the handler
	ComputedAt        *time.Time `db:"computed_at" json:"computed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LCAElement is one material line item in a snapshot.
type LCAElement struct {
	ID         string    `db:"id" json:"id"`
	SnapshotID string    `db:"snapshot_id" json:"snapshot_id"`
	Material   string    `db:"material" json:"material"`
	Category   string    `db:"category" json:"category"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	Unit       string    `db:"unit" json:"unit"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
