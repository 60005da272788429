// Package projects implements project CRUD within an organization.
package projects

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

// Handlers bundles the project endpoints.
type Handlers struct {
	projects *repositories.ProjectRepository
}

// NewHandlers creates the project handlers.
func NewHandlers(projects *repositories.ProjectRepository) *Handlers {
	return &Handlers{projects: projects}
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

// Create handles POST /api/v1/organizations/:orgId/projects
func (h *Handlers) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	project := &models.Project{
		OrganizationID: c.Param("orgId"),
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		Address:        strings.TrimSpace(req.Address),
		Status:         models.ProjectStatusActive,
		CreatedBy:      &user.ID,
	}
	if err := h.projects.Create(c.Request.Context(), project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// List handles GET /api/v1/organizations/:orgId/projects
func (h *Handlers) List(c *gin.Context) {
	limit, offset := pagination(c)

	orgID := c.Param("orgId")
	projects, err := h.projects.ListByOrganization(c.Request.Context(), orgID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list projects"})
		return
	}
	total, err := h.projects.CountByOrganization(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count projects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"meta": gin.H{
			"limit":  limit,
			"offset": offset,
			"total":  total,
		},
	})
}

// Get handles GET /api/v1/organizations/:orgId/projects/:projectId
func (h *Handlers) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"project": middleware.CurrentProject(c)})
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Address     *string `json:"address"`
	Status      *string `json:"status"`
}

// Update handles PUT /api/v1/organizations/:orgId/projects/:projectId
func (h *Handlers) Update(c *gin.Context) {
	project := middleware.CurrentProject(c)

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Project name cannot be empty"})
			return
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = strings.TrimSpace(*req.Description)
	}
	if req.Address != nil {
		project.Address = strings.TrimSpace(*req.Address)
	}
	if req.Status != nil {
		if *req.Status != models.ProjectStatusActive && *req.Status != models.ProjectStatusArchived {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be 'active' or 'archived'"})
			return
		}
		project.Status = *req.Status
	}

	if err := h.projects.Update(c.Request.Context(), project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// Delete handles DELETE /api/v1/organizations/:orgId/projects/:projectId
// Cascades to files, chats, and snapshots.
func (h *Handlers) Delete(c *gin.Context) {
	project := middleware.CurrentProject(c)
	if err := h.projects.Delete(c.Request.Context(), project.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// pagination reads limit/offset query parameters with sane bounds.
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
