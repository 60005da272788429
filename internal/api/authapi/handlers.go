// Package authapi implements signup, login, and the optional OIDC single
// sign-on flow. Password accounts use bcrypt; all successful authentications
// issue a short-lived HS256 JWT.
package authapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/auth"
	"github.com/grooshub/grooshub/internal/auth/oidc"
	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

const oidcStateCookie = "groos_oidc_state"

// Handlers bundles the authentication endpoints.
type Handlers struct {
	cfg      *config.Config
	users    *repositories.UserRepository
	oidcProv *oidc.OIDCProvider
}

// NewHandlers creates the auth handlers. The OIDC provider is initialized
// lazily at serve time only when auth.oidc.enabled is set; a nil provider
// disables the /oidc routes with 404.
func NewHandlers(cfg *config.Config, users *repositories.UserRepository) *Handlers {
	return &Handlers{cfg: cfg, users: users}
}

// SetOIDCProvider enables the OIDC login flow.
func (h *Handlers) SetOIDCProvider(p *oidc.OIDCProvider) {
	h.oidcProv = p
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup handles POST /api/v1/auth/signup
func (h *Handlers) Signup(c *gin.Context) {
	if !h.cfg.MultiTenancy.AllowPublicSignup {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Public signup is disabled on this instance",
		})
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing account"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: &hash,
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up account"})
		return
	}

	// Same response for unknown email and wrong password so the endpoint
	// cannot be used to enumerate accounts.
	if user == nil || user.PasswordHash == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if err := auth.CheckPassword(*user.PasswordHash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type updateMeRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateMe handles PATCH /api/v1/auth/me
func (h *Handlers) UpdateMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	user.Name = strings.TrimSpace(req.Name)
	if err := h.users.Update(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// OIDCLogin handles GET /api/v1/auth/oidc/login
// Redirects the browser to the identity provider with a state cookie.
func (h *Handlers) OIDCLogin(c *gin.Context) {
	if h.oidcProv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "OIDC login is not configured"})
		return
	}

	state, err := auth.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate state"})
		return
	}

	secure := strings.HasPrefix(h.cfg.Server.GetPublicURL(), "https://")
	c.SetCookie(oidcStateCookie, state, 300, "/", "", secure, true)
	c.Redirect(http.StatusFound, h.oidcProv.GetAuthURL(state))
}

// OIDCCallback handles GET /api/v1/auth/oidc/callback
// Verifies state and the ID token, provisions or links the user account, and
// returns a session JWT.
func (h *Handlers) OIDCCallback(c *gin.Context) {
	if h.oidcProv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "OIDC login is not configured"})
		return
	}

	state := c.Query("state")
	cookieState, err := c.Cookie(oidcStateCookie)
	if err != nil || state == "" || state != cookieState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing OIDC state"})
		return
	}
	c.SetCookie(oidcStateCookie, "", -1, "/", "", false, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	oauthToken, err := h.oidcProv.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity provider returned no ID token"})
		return
	}

	idToken, err := h.oidcProv.VerifyIDToken(c.Request.Context(), rawIDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ID token"})
		return
	}

	sub, email, name, err := h.oidcProv.ExtractUserInfo(idToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to read identity claims"})
		return
	}
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := h.resolveOIDCUser(c, sub, email, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision account"})
		return
	}
	if user == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Public signup is disabled on this instance"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.cfg.Auth.SessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// resolveOIDCUser finds the account for an OIDC identity: by subject first,
// then by email (linking the subject to an existing password account), and
// finally by provisioning a new account when public signup allows it.
func (h *Handlers) resolveOIDCUser(c *gin.Context, sub, email, name string) (*models.User, error) {
	ctx := c.Request.Context()

	user, err := h.users.GetByOIDCSub(ctx, sub)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = h.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := h.users.LinkOIDCSubject(ctx, user.ID, sub); err != nil {
			return nil, err
		}
		user.OIDCSub = &sub
		return user, nil
	}

	if !h.cfg.MultiTenancy.AllowPublicSignup {
		return nil, nil
	}

	user = &models.User{
		Email:   email,
		Name:    name,
		OIDCSub: &sub,
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
