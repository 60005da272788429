// project.go resolves the :projectId path parameter and checks that the
// project belongs to the organization resolved by RequireOrgRole.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

// ContextProject is the context key holding the resolved *models.Project.
const ContextProject = "project"

// RequireProject loads the :projectId project and verifies it belongs to the
// organization in the context. Must run after RequireOrgRole.
func RequireProject(projectRepo *repositories.ProjectRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		if projectID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Missing project ID",
			})
			return
		}

		project, err := projectRepo.GetByID(c.Request.Context(), projectID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load project",
			})
			return
		}

		// Cross-organization probing gets the same 404 as a missing project.
		if project == nil || project.OrganizationID != CurrentOrgID(c) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		c.Set(ContextProject, project)
		c.Next()
	}
}

// CurrentProject returns the project resolved by RequireProject, or nil.
func CurrentProject(c *gin.Context) *models.Project {
	val, exists := c.Get(ContextProject)
	if !exists {
		return nil
	}
	project, ok := val.(*models.Project)
	if !ok {
		return nil
	}
	return project
}
