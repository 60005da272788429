// Package admin implements the platform administration endpoints: user and
// organization management, platform statistics, audit log access, and the
// impact factor catalogue. All routes require the is_admin flag.
package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

// Handlers bundles the admin endpoints.
type Handlers struct {
	users    *repositories.UserRepository
	orgs     *repositories.OrganizationRepository
	projects *repositories.ProjectRepository
	audit    *repositories.AuditRepository
	lca      *repositories.LCARepository
}

// NewHandlers creates the admin handlers.
func NewHandlers(
	users *repositories.UserRepository,
	orgs *repositories.OrganizationRepository,
	projects *repositories.ProjectRepository,
	audit *repositories.AuditRepository,
	lca *repositories.LCARepository,
) *Handlers {
	return &Handlers{users: users, orgs: orgs, projects: projects, audit: audit, lca: lca}
}

// ===========================================================================
// Users
// ===========================================================================

// ListUsers handles GET /api/v1/admin/users?q=<search>
func (h *Handlers) ListUsers(c *gin.Context) {
	limit, offset := pagination(c)

	var (
		users []*models.User
		err   error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err = h.users.Search(c.Request.Context(), q, limit, offset)
	} else {
		users, err = h.users.List(c.Request.Context(), limit, offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	total, err := h.users.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"meta":  gin.H{"limit": limit, "offset": offset, "total": total},
	})
}

type updateUserRequest struct {
	IsAdmin *bool   `json:"is_admin"`
	Name    *string `json:"name"`
}

// UpdateUser handles PUT /api/v1/admin/users/:userId
func (h *Handlers) UpdateUser(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.IsAdmin != nil {
		// Admins cannot strip their own flag, so the platform always keeps at
		// least one administrator.
		if caller := middleware.CurrentUser(c); caller != nil && caller.ID == user.ID && !*req.IsAdmin {
			c.JSON(http.StatusConflict, gin.H{"error": "Cannot revoke your own administrator access"})
			return
		}
		user.IsAdmin = *req.IsAdmin
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// DeleteUser handles DELETE /api/v1/admin/users/:userId
func (h *Handlers) DeleteUser(c *gin.Context) {
	if caller := middleware.CurrentUser(c); caller != nil && caller.ID == c.Param("userId") {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot delete your own account"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), c.Param("userId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// ===========================================================================
// Organizations
// ===========================================================================

// ListOrganizations handles GET /api/v1/admin/organizations
func (h *Handlers) ListOrganizations(c *gin.Context) {
	limit, offset := pagination(c)

	orgs, err := h.orgs.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list organizations"})
		return
	}
	total, err := h.orgs.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count organizations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organizations": orgs,
		"meta":          gin.H{"limit": limit, "offset": offset, "total": total},
	})
}

// DeleteOrganization handles DELETE /api/v1/admin/organizations/:orgId
func (h *Handlers) DeleteOrganization(c *gin.Context) {
	if err := h.orgs.Delete(c.Request.Context(), c.Param("orgId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted"})
}

// OrganizationAudit handles GET /api/v1/admin/organizations/:orgId/audit
func (h *Handlers) OrganizationAudit(c *gin.Context) {
	limit, offset := pagination(c)

	entries, err := h.audit.ListByOrganization(c.Request.Context(), c.Param("orgId"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"meta":    gin.H{"limit": limit, "offset": offset},
	})
}

// ===========================================================================
// Platform statistics
// ===========================================================================

// Stats handles GET /api/v1/admin/stats
func (h *Handlers) Stats(c *gin.Context) {
	users, err := h.users.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
		return
	}
	orgs, err := h.orgs.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count organizations"})
		return
	}
	projects, err := h.projects.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count projects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":         users,
		"organizations": orgs,
		"projects":      projects,
	})
}

// ===========================================================================
// Impact factor catalogue
// ===========================================================================

type upsertFactorRequest struct {
	Material          string  `json:"material" binding:"required"`
	Category          string  `json:"category" binding:"required"`
	Unit              string  `json:"unit" binding:"required"`
	ShadowCostPerUnit float64 `json:"shadow_cost_per_unit" binding:"required"`
	GWPPerUnit        float64 `json:"gwp_per_unit"`
	LifespanYears     int     `json:"lifespan_years"`
}

// UpsertImpactFactor handles PUT /api/v1/admin/lca/factors
// Inserts or replaces the catalogue row for a material.
func (h *Handlers) UpsertImpactFactor(c *gin.Context) {
	var req upsertFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.ShadowCostPerUnit < 0 || req.GWPPerUnit < 0 || req.LifespanYears < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Factor values cannot be negative"})
		return
	}

	factor := &models.ImpactFactor{
		Material:          strings.ToLower(strings.TrimSpace(req.Material)),
		Category:          strings.ToLower(strings.TrimSpace(req.Category)),
		Unit:              strings.TrimSpace(req.Unit),
		ShadowCostPerUnit: req.ShadowCostPerUnit,
		GWPPerUnit:        req.GWPPerUnit,
		LifespanYears:     req.LifespanYears,
	}
	if err := h.lca.UpsertImpactFactor(c.Request.Context(), factor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store impact factor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"factor": factor})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
