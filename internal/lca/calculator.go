// Package lca computes building life-cycle assessment results: shadow-cost
// aggregation over a snapshot's material elements and the Dutch MPG score
// (MilieuPrestatie Gebouwen, environmental cost per square meter per year).
package lca

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/telemetry"
)

// CategoryImpact is the aggregated impact of one material category.
type CategoryImpact struct {
	Category   string  `json:"category"`
	ShadowCost float64 `json:"shadow_cost"`
	GWP        float64 `json:"gwp"`
}

// Result is the outcome of one snapshot computation.
type Result struct {
	MPGScore        float64          `json:"mpg_score"`
	TotalShadowCost float64          `json:"total_shadow_cost"`
	TotalGWP        float64          `json:"total_gwp"`
	Categories      []CategoryImpact `json:"categories"`
}

// Calculator computes and persists snapshot results.
type Calculator struct {
	repo *repositories.LCARepository
}

// NewCalculator creates a calculator over the LCA repository.
func NewCalculator(repo *repositories.LCARepository) *Calculator {
	return &Calculator{repo: repo}
}

// replacementFactor is how many times a material is installed over the study
// period. A material outliving the study period is installed once; shorter
// lifespans require ceil(period / lifespan) installations. Unknown lifespan
// (0) counts as a single installation.
func replacementFactor(studyPeriodYears, lifespanYears int) float64 {
	if lifespanYears <= 0 || lifespanYears >= studyPeriodYears {
		return 1
	}
	return math.Ceil(float64(studyPeriodYears) / float64(lifespanYears))
}

// Compute aggregates the snapshot's elements against the impact factor table
// and returns the result. Elements whose material has no impact factor make
// the computation fail rather than silently under-reporting.
func (c *Calculator) Compute(ctx context.Context, snapshot *models.LCASnapshot, elements []*models.LCAElement) (*Result, error) {
	if snapshot.GrossFloorArea <= 0 {
		return nil, fmt.Errorf("gross floor area must be positive")
	}
	if snapshot.StudyPeriodYears <= 0 {
		return nil, fmt.Errorf("study period must be positive")
	}

	byCategory := make(map[string]*CategoryImpact)
	var totalShadowCost, totalGWP float64

	for _, el := range elements {
		factor, err := c.repo.GetImpactFactor(ctx, el.Material)
		if err != nil {
			return nil, fmt.Errorf("failed to load impact factor for %s: %w", el.Material, err)
		}
		if factor == nil {
			return nil, fmt.Errorf("no impact factor for material %q", el.Material)
		}
		if factor.Unit != el.Unit {
			return nil, fmt.Errorf("unit mismatch for %q: element uses %s, factor is per %s", el.Material, el.Unit, factor.Unit)
		}

		repl := replacementFactor(snapshot.StudyPeriodYears, factor.LifespanYears)
		shadowCost := el.Quantity * factor.ShadowCostPerUnit * repl
		gwp := el.Quantity * factor.GWPPerUnit * repl

		cat := byCategory[el.Category]
		if cat == nil {
			cat = &CategoryImpact{Category: el.Category}
			byCategory[el.Category] = cat
		}
		cat.ShadowCost += shadowCost
		cat.GWP += gwp
		totalShadowCost += shadowCost
		totalGWP += gwp
	}

	categories := make([]CategoryImpact, 0, len(byCategory))
	for _, cat := range byCategory {
		categories = append(categories, *cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Category < categories[j].Category })

	mpg := totalShadowCost / (snapshot.GrossFloorArea * float64(snapshot.StudyPeriodYears))

	return &Result{
		MPGScore:        mpg,
		TotalShadowCost: totalShadowCost,
		TotalGWP:        totalGWP,
		Categories:      categories,
	}, nil
}

// ComputeAndStore recomputes a snapshot from its current elements and
// persists the result. Recomputing an unchanged snapshot yields the same
// stored values.
func (c *Calculator) ComputeAndStore(ctx context.Context, snapshotID string) (*Result, error) {
	snapshot, err := c.repo.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
	}

	elements, err := c.repo.ListElements(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	result, err := c.Compute(ctx, snapshot, elements)
	if err != nil {
		return nil, err
	}

	breakdown, err := json.Marshal(result.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode category breakdown: %w", err)
	}

	if err := c.repo.StoreResults(ctx, snapshotID, result.MPGScore, result.TotalShadowCost, result.TotalGWP, breakdown); err != nil {
		return nil, err
	}

	telemetry.LCASnapshotsComputedTotal.Inc()
	return result, nil
}
