// audit.go provides Gin middleware that records authenticated write operations
// to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

// AuditMiddleware records successful write operations (POST/PUT/PATCH/DELETE)
// to the audit trail. Reads and failed requests are not recorded. The write is
// asynchronous: audit logging is best-effort and must not add latency to the
// request path.
func AuditMiddleware(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request first
		c.Next()

		if c.Request.Method == "OPTIONS" || c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			return
		}

		if c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:     c.Request.Method + " " + pathTemplate(c),
			Resource:   resourceFromPath(c.Request.URL.Path),
			ResourceID: lastIDParam(c),
			StatusCode: c.Writer.Status(),
			RequestID:  c.GetString(RequestIDKey),
		}

		if user := CurrentUser(c); user != nil {
			id := user.ID
			entry.UserID = &id
		}
		if orgID := CurrentOrgID(c); orgID != "" {
			id := orgID
			entry.OrganizationID = &id
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := auditRepo.Create(ctx, entry); err != nil {
				slog.Warn("failed to write audit entry", "action", entry.Action, "error", err)
			}
		}()
	}
}

// pathTemplate returns the matched route template, falling back to the raw
// path for unrouted requests.
func pathTemplate(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// resourceFromPath maps a request path to the resource type it touches.
func resourceFromPath(path string) string {
	switch {
	case strings.Contains(path, "/invitations"):
		return "invitation"
	case strings.Contains(path, "/members"):
		return "member"
	case strings.Contains(path, "/files"):
		return "file"
	case strings.Contains(path, "/chats"):
		return "chat"
	case strings.Contains(path, "/lca"):
		return "lca_snapshot"
	case strings.Contains(path, "/locations"):
		return "location"
	case strings.Contains(path, "/projects"):
		return "project"
	case strings.Contains(path, "/orgs"):
		return "organization"
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/auth"):
		return "session"
	default:
		return "unknown"
	}
}

// lastIDParam returns the most specific resource ID in the route, preferring
// deeper path parameters over the organization ID.
func lastIDParam(c *gin.Context) string {
	for _, name := range []string{"snapshotId", "chatId", "fileId", "locationId", "invitationId", "userId", "projectId", "orgId"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
