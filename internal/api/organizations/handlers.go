// Package organizations implements the tenant management endpoints:
// organization CRUD, memberships, invitations, and the bring-your-own AI
// provider key.
package organizations

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/auth"
	"github.com/grooshub/grooshub/internal/crypto"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

// invitationTTL is how long an invitation can be accepted.
const invitationTTL = 7 * 24 * time.Hour

// nameRe constrains organization names to URL-safe slugs.
var nameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// Handlers bundles the organization endpoints.
type Handlers struct {
	orgs        *repositories.OrganizationRepository
	invitations *repositories.InvitationRepository
	usage       *repositories.UsageRepository
	cipher      *crypto.TokenCipher
}

// NewHandlers creates the organization handlers. cipher encrypts the optional
// per-tenant AI provider key at rest.
func NewHandlers(
	orgs *repositories.OrganizationRepository,
	invitations *repositories.InvitationRepository,
	usage *repositories.UsageRepository,
	cipher *crypto.TokenCipher,
) *Handlers {
	return &Handlers{orgs: orgs, invitations: invitations, usage: usage, cipher: cipher}
}

// ===========================================================================
// Organization CRUD
// ===========================================================================

type createOrgRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name"`
}

// Create handles POST /api/v1/organizations
// The creating user becomes the organization owner.
func (h *Handlers) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req createOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if !nameRe.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Organization name must be a lowercase slug (letters, digits, hyphens)",
		})
		return
	}

	existing, err := h.orgs.GetByName(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check organization name"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "An organization with this name already exists"})
		return
	}

	org := &models.Organization{
		Name:        name,
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	if org.DisplayName == "" {
		org.DisplayName = name
	}

	if err := h.orgs.Create(c.Request.Context(), org); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create organization"})
		return
	}
	if err := h.orgs.AddMember(c.Request.Context(), org.ID, user.ID, models.RoleOwner); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add owner membership"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"organization": org})
}

// ListMine handles GET /api/v1/organizations
// Returns the organizations the authenticated user belongs to.
func (h *Handlers) ListMine(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	orgs, err := h.orgs.GetUserOrganizations(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list organizations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// Get handles GET /api/v1/organizations/:orgId
func (h *Handlers) Get(c *gin.Context) {
	org, err := h.orgs.GetByID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load organization"})
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization":   org,
		"has_ai_api_key": org.AIAPIKeyEncrypted != nil,
	})
}

type updateOrgRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// Update handles PUT /api/v1/organizations/:orgId
func (h *Handlers) Update(c *gin.Context) {
	var req updateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load organization"})
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	org.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := h.orgs.Update(c.Request.Context(), org); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update organization"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org})
}

// Delete handles DELETE /api/v1/organizations/:orgId
// Owner only. Cascades to projects, files, chats, and snapshots.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.orgs.Delete(c.Request.Context(), c.Param("orgId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted"})
}

// ===========================================================================
// AI provider key
// ===========================================================================

type setAIKeyRequest struct {
	// APIKey is the plaintext provider key. Empty clears the override and
	// returns the organization to the platform keys.
	APIKey string `json:"api_key"`
}

// SetAIAPIKey handles PUT /api/v1/organizations/:orgId/ai-key
// Owner only. The key is AES-GCM encrypted before it is stored.
func (h *Handlers) SetAIAPIKey(c *gin.Context) {
	var req setAIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	orgID := c.Param("orgId")

	if strings.TrimSpace(req.APIKey) == "" {
		if err := h.orgs.SetAIAPIKey(c.Request.Context(), orgID, nil); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear AI API key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "AI API key cleared"})
		return
	}

	sealed, err := h.cipher.Seal(req.APIKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt AI API key"})
		return
	}
	if err := h.orgs.SetAIAPIKey(c.Request.Context(), orgID, &sealed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store AI API key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "AI API key updated"})
}

// Usage handles GET /api/v1/organizations/:orgId/usage
// Returns today's AI call count for the organization.
func (h *Handlers) Usage(c *gin.Context) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	calls, err := h.usage.Get(c.Request.Context(), c.Param("orgId"), today)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"day":      today.Format("2006-01-02"),
		"ai_calls": calls,
	})
}

// ===========================================================================
// Members
// ===========================================================================

// ListMembers handles GET /api/v1/organizations/:orgId/members
func (h *Handlers) ListMembers(c *gin.Context) {
	members, err := h.orgs.ListMembersWithUsers(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type updateMemberRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateMemberRole handles PUT /api/v1/organizations/:orgId/members/:userId
func (h *Handlers) UpdateMemberRole(c *gin.Context) {
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Role != models.RoleOwner && req.Role != models.RoleAdmin && req.Role != models.RoleMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be 'owner', 'admin', or 'member'"})
		return
	}

	orgID := c.Param("orgId")
	userID := c.Param("userId")

	member, err := h.orgs.GetMember(c.Request.Context(), orgID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load membership"})
		return
	}
	if member == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	// Demoting the last owner would orphan the organization.
	if member.Role == models.RoleOwner && req.Role != models.RoleOwner {
		if blocked, err := h.isLastOwner(c, orgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check owners"})
			return
		} else if blocked {
			c.JSON(http.StatusConflict, gin.H{"error": "Cannot demote the last owner"})
			return
		}
	}

	if err := h.orgs.UpdateMemberRole(c.Request.Context(), orgID, userID, req.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update member role"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member role updated"})
}

// RemoveMember handles DELETE /api/v1/organizations/:orgId/members/:userId
// Members may remove themselves; removing anyone else requires admin.
func (h *Handlers) RemoveMember(c *gin.Context) {
	orgID := c.Param("orgId")
	userID := c.Param("userId")

	caller := middleware.CurrentUser(c)
	if caller != nil && caller.ID != userID {
		if !models.RoleAtLeast(middleware.CurrentOrgRole(c), models.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}
	}

	member, err := h.orgs.GetMember(c.Request.Context(), orgID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load membership"})
		return
	}
	if member == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	if member.Role == models.RoleOwner {
		if blocked, err := h.isLastOwner(c, orgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check owners"})
			return
		} else if blocked {
			c.JSON(http.StatusConflict, gin.H{"error": "Cannot remove the last owner"})
			return
		}
	}

	if err := h.orgs.RemoveMember(c.Request.Context(), orgID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

func (h *Handlers) isLastOwner(c *gin.Context, orgID string) (bool, error) {
	owners, err := h.orgs.CountMembersWithRole(c.Request.Context(), orgID, models.RoleOwner)
	if err != nil {
		return false, err
	}
	return owners <= 1, nil
}

// ===========================================================================
// Invitations
// ===========================================================================

type createInvitationRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// CreateInvitation handles POST /api/v1/organizations/:orgId/invitations
// The raw token is returned exactly once, in this response.
func (h *Handlers) CreateInvitation(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleMember
	}
	// Invitations cannot grant ownership.
	if role != models.RoleAdmin && role != models.RoleMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be 'admin' or 'member'"})
		return
	}

	token, err := auth.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate invitation token"})
		return
	}

	inv := &models.Invitation{
		OrganizationID: c.Param("orgId"),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Role:           role,
		Token:          token,
		InvitedBy:      user.ID,
		ExpiresAt:      time.Now().Add(invitationTTL),
	}
	if err := h.invitations.Create(c.Request.Context(), inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invitation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"invitation": inv,
		"token":      token,
	})
}

// ListInvitations handles GET /api/v1/organizations/:orgId/invitations
func (h *Handlers) ListInvitations(c *gin.Context) {
	invs, err := h.invitations.ListByOrganization(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invitations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// DeleteInvitation handles DELETE /api/v1/organizations/:orgId/invitations/:invitationId
func (h *Handlers) DeleteInvitation(c *gin.Context) {
	inv, err := h.invitations.GetByID(c.Request.Context(), c.Param("invitationId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invitation"})
		return
	}
	if inv == nil || inv.OrganizationID != c.Param("orgId") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
		return
	}

	if err := h.invitations.Delete(c.Request.Context(), inv.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invitation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation revoked"})
}

type acceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptInvitation handles POST /api/v1/invitations/accept
// The authenticated user redeems a token; the invitation email must match
// their account email.
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	inv, err := h.invitations.GetByToken(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up invitation"})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
		return
	}
	if inv.IsAccepted() {
		c.JSON(http.StatusConflict, gin.H{"error": "Invitation has already been accepted"})
		return
	}
	if inv.IsExpired() {
		c.JSON(http.StatusGone, gin.H{"error": "Invitation has expired"})
		return
	}
	if !strings.EqualFold(inv.Email, user.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invitation was issued for a different email address"})
		return
	}

	existing, err := h.orgs.GetMember(c.Request.Context(), inv.OrganizationID, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check membership"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this organization"})
		return
	}

	if err := h.orgs.AddMember(c.Request.Context(), inv.OrganizationID, user.ID, inv.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add membership"})
		return
	}
	if err := h.invitations.MarkAccepted(c.Request.Context(), inv.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark invitation accepted"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Invitation accepted",
		"organization_id": inv.OrganizationID,
		"role":            inv.Role,
	})
}
