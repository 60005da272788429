// Package lcaapi implements the life-cycle-assessment endpoints: snapshot
// CRUD, material element management, MPG computation, and the impact factor
// catalogue.
package lcaapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/lca"
	"github.com/grooshub/grooshub/internal/middleware"
)

// Handlers bundles the LCA endpoints.
type Handlers struct {
	repo       *repositories.LCARepository
	calculator *lca.Calculator
}

// NewHandlers creates the LCA handlers.
func NewHandlers(repo *repositories.LCARepository, calculator *lca.Calculator) *Handlers {
	return &Handlers{repo: repo, calculator: calculator}
}

// ListFactors handles GET /api/v1/lca/factors
// The impact factor catalogue is shared across all tenants.
func (h *Handlers) ListFactors(c *gin.Context) {
	factors, err := h.repo.ListImpactFactors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list impact factors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"factors": factors})
}

type createSnapshotRequest struct {
	Name             string  `json:"name" binding:"required"`
	GrossFloorArea   float64 `json:"gross_floor_area" binding:"required"`
	StudyPeriodYears int     `json:"study_period_years"`
}

// CreateSnapshot handles POST /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots
func (h *Handlers) CreateSnapshot(c *gin.Context) {
	project := middleware.CurrentProject(c)

	var req createSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.GrossFloorArea <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Gross floor area must be positive"})
		return
	}
	if req.StudyPeriodYears <= 0 {
		req.StudyPeriodYears = 50 // Dutch MPG default study period
	}

	snapshot := &models.LCASnapshot{
		ProjectID:        project.ID,
		Name:             strings.TrimSpace(req.Name),
		GrossFloorArea:   req.GrossFloorArea,
		StudyPeriodYears: req.StudyPeriodYears,
	}
	if err := h.repo.CreateSnapshot(c.Request.Context(), snapshot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create snapshot"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"snapshot": snapshot})
}

// ListSnapshots handles GET /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots
func (h *Handlers) ListSnapshots(c *gin.Context) {
	project := middleware.CurrentProject(c)

	snapshots, err := h.repo.ListSnapshotsByProject(c.Request.Context(), project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list snapshots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// GetSnapshot handles GET /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots/:snapshotId
// Returns the snapshot, its elements, and the decoded category breakdown.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	elements, err := h.repo.ListElements(c.Request.Context(), snapshot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list elements"})
		return
	}

	resp := gin.H{"snapshot": snapshot, "elements": elements}
	if len(snapshot.CategoryBreakdown) > 0 {
		var categories []lca.CategoryImpact
		if err := json.Unmarshal(snapshot.CategoryBreakdown, &categories); err == nil {
			resp["categories"] = categories
		}
	}

	c.JSON(http.StatusOK, resp)
}

type updateSnapshotRequest struct {
	Name             *string  `json:"name"`
	GrossFloorArea   *float64 `json:"gross_floor_area"`
	StudyPeriodYears *int     `json:"study_period_years"`
}

// UpdateSnapshot handles PUT /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots/:snapshotId
// Changing the inputs invalidates previously computed results.
func (h *Handlers) UpdateSnapshot(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	var req updateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Snapshot name cannot be empty"})
			return
		}
		snapshot.Name = name
	}
	if req.GrossFloorArea != nil {
		if *req.GrossFloorArea <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Gross floor area must be positive"})
			return
		}
		snapshot.GrossFloorArea = *req.GrossFloorArea
	}
	if req.StudyPeriodYears != nil {
		if *req.StudyPeriodYears <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Study period must be positive"})
			return
		}
		snapshot.StudyPeriodYears = *req.StudyPeriodYears
	}

	if err := h.repo.UpdateSnapshot(c.Request.Context(), snapshot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// DeleteSnapshot handles DELETE /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots/:snapshotId
func (h *Handlers) DeleteSnapshot(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	if err := h.repo.DeleteSnapshot(c.Request.Context(), snapshot.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete snapshot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Snapshot deleted"})
}

type elementInput struct {
	Material string  `json:"material" binding:"required"`
	Category string  `json:"category" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
	Unit     string  `json:"unit" binding:"required"`
}

type putElementsRequest struct {
	Elements []elementInput `json:"elements" binding:"required"`
}

// PutElements handles PUT /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots/:snapshotId/elements
// Replaces the full material bill of the snapshot.
func (h *Handlers) PutElements(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	var req putElementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	elements := make([]*models.LCAElement, len(req.Elements))
	for i, e := range req.Elements {
		if e.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Element quantities must be positive"})
			return
		}
		elements[i] = &models.LCAElement{
			SnapshotID: snapshot.ID,
			Material:   strings.ToLower(strings.TrimSpace(e.Material)),
			Category:   strings.ToLower(strings.TrimSpace(e.Category)),
			Quantity:   e.Quantity,
			Unit:       strings.TrimSpace(e.Unit),
		}
	}

	if err := h.repo.ReplaceElements(c.Request.Context(), snapshot.ID, elements); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store elements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"elements": elements})
}

// Compute handles POST /api/v1/organizations/:orgId/projects/:projectId/lca/snapshots/:snapshotId/compute
// Runs the MPG computation over the snapshot's elements and stores the result.
func (h *Handlers) Compute(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	result, err := h.calculator.ComputeAndStore(c.Request.Context(), snapshot.ID)
	if err != nil {
		// Unknown materials and unit mismatches are caller-fixable.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// projectSnapshot loads :snapshotId and verifies it belongs to the current
// project. Writes the error response and returns nil when unavailable.
func (h *Handlers) projectSnapshot(c *gin.Context) *models.LCASnapshot {
	project := middleware.CurrentProject(c)

	snapshot, err := h.repo.GetSnapshot(c.Request.Context(), c.Param("snapshotId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load snapshot"})
		return nil
	}
	if snapshot == nil || snapshot.ProjectID != project.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot not found"})
		return nil
	}
	return snapshot
}
