// Package middleware provides Gin HTTP middleware for authentication,
// organization role checks, rate limiting, security headers, AI quota
// enforcement, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → CORS → RequestID → Metrics → RateLimit → Auth → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB
// work. Auth populates the user identity; the organization role and AI quota
// middleware read from that context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/auth"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

// Context keys set by the auth middleware.
const (
	ContextUser    = "user"
	ContextUserID  = "user_id"
	ContextOrgID   = "organization_id"
	ContextOrgRole = "organization_role"
)

// AuthMiddleware validates the bearer JWT and loads the user into the request
// context.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		user, err := userRepo.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}

		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)

		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated user is a platform
// administrator. Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Administrator access required",
			})
			return
		}
		c.Next()
	}
}

// RequireOrgRole resolves the :orgId path parameter, checks that the
// authenticated user is a member of that organization with at least the
// required role, and stores the organization ID and role in the context.
// Platform admins pass regardless of membership.
func RequireOrgRole(orgRepo *repositories.OrganizationRepository, requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("orgId")
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Missing organization ID",
			})
			return
		}

		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if user.IsAdmin {
			c.Set(ContextOrgID, orgID)
			c.Set(ContextOrgRole, models.RoleOwner)
			c.Next()
			return
		}

		member, err := orgRepo.GetMember(c.Request.Context(), orgID, user.ID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check membership",
			})
			return
		}

		if member == nil {
			// 404 rather than 403 so non-members cannot probe which
			// organization IDs exist.
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		if !models.RoleAtLeast(member.Role, requiredRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role",
			})
			return
		}

		c.Set(ContextOrgID, orgID)
		c.Set(ContextOrgRole, member.Role)

		c.Next()
	}
}

// CurrentUser returns the authenticated user from the context, or nil.
func CurrentUser(c *gin.Context) *models.User {
	val, exists := c.Get(ContextUser)
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// CurrentOrgID returns the organization ID resolved by RequireOrgRole, or "".
func CurrentOrgID(c *gin.Context) string {
	val, exists := c.Get(ContextOrgID)
	if !exists {
		return ""
	}
	id, _ := val.(string)
	return id
}

// CurrentOrgRole returns the caller's role in the organization resolved by
// RequireOrgRole, or "".
func CurrentOrgRole(c *gin.Context) string {
	val, exists := c.Get(ContextOrgRole)
	if !exists {
		return ""
	}
	role, _ := val.(string)
	return role
}
