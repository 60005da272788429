// Package api wires together all HTTP routes for the GroosHub backend.
//
// Route grouping philosophy:
//   - /health, /ready, and /version are unauthenticated so load balancers and
//     deploy tooling can probe the service without credentials.
//   - /v1/blobs/ serves local-backend files directly and is unauthenticated;
//     the URLs are only discoverable through authenticated file endpoints.
//   - Everything under /api/v1/ requires a bearer JWT except signup, login,
//     and the OIDC flow. Organization-scoped routes additionally pass through
//     RequireOrgRole, and project-scoped routes through RequireProject.
//
// Middleware ordering: Security → CORS → RequestID → Metrics → Logger →
// RateLimit → Auth → Audit. Security headers run first so they appear on all
// responses; rate limiting runs before auth to stop brute force attempts
// before any database work.
package api

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/grooshub/grooshub/internal/ai"
	"github.com/grooshub/grooshub/internal/api/admin"
	"github.com/grooshub/grooshub/internal/api/authapi"
	"github.com/grooshub/grooshub/internal/api/chats"
	"github.com/grooshub/grooshub/internal/api/files"
	"github.com/grooshub/grooshub/internal/api/lcaapi"
	"github.com/grooshub/grooshub/internal/api/locations"
	"github.com/grooshub/grooshub/internal/api/organizations"
	"github.com/grooshub/grooshub/internal/api/projects"
	"github.com/grooshub/grooshub/internal/auth/oidc"
	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/crypto"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/geo"
	"github.com/grooshub/grooshub/internal/jobs"
	"github.com/grooshub/grooshub/internal/lca"
	"github.com/grooshub/grooshub/internal/middleware"
	"github.com/grooshub/grooshub/internal/rag"
	"github.com/grooshub/grooshub/internal/storage"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) calls
// Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	cancel       context.CancelFunc
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines and closes shared clients.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cancel != nil {
		bg.cancel()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	log.Printf("Initialized storage backend: %s", cfg.Storage.DefaultBackend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	invitationRepo := repositories.NewInvitationRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	fileRepo := repositories.NewFileRepository(db)
	documentRepo := repositories.NewDocumentRepository(db)
	chatRepo := repositories.NewChatRepository(db)
	usageRepo := repositories.NewUsageRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	lcaRepo := repositories.NewLCARepository(db)
	locationRepo := repositories.NewLocationRepository(db)

	// Token cipher for the per-tenant AI provider keys
	encryptionKey := os.Getenv("GROOS_ENCRYPTION_KEY")
	if encryptionKey == "" {
		log.Fatal("GROOS_ENCRYPTION_KEY environment variable must be set (32 bytes)")
	}
	tokenCipher, err := crypto.NewTokenCipher([]byte(encryptionKey))
	if err != nil {
		log.Fatalf("Failed to initialize token cipher: %v", err)
	}

	// AI provider, embedder, and the RAG agent
	jobCtx, cancel := context.WithCancel(context.Background())

	provider, err := ai.NewProvider(jobCtx, &cfg.AI)
	if err != nil {
		log.Fatalf("Failed to initialize AI provider: %v", err)
	}
	embedder, err := provider.Embedder()
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}

	chunker := rag.NewChunker(&cfg.RAG)
	classifier := rag.NewClassifier(provider)
	retriever := rag.NewRetriever(embedder, documentRepo, &cfg.RAG)
	agent := rag.NewAgent(provider, classifier, retriever, fileRepo, lcaRepo, usageRepo, cfg.AI.MaxTurns)

	calculator := lca.NewCalculator(lcaRepo)
	geoClient := geo.NewClient(&cfg.Geo)

	// Optional Redis for the fast-path AI rate limiter
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Printf("Redis AI rate limiting enabled: %s", cfg.Redis.Addr)
	}
	aiQuota := middleware.NewAIQuota(redisClient, usageRepo, &cfg.AI)

	// Background workers
	indexer := jobs.NewIndexer(fileRepo, documentRepo, storageBackend, chunker, embedder, &cfg.RAG)
	indexer.Start(jobCtx)
	cleanup := jobs.NewCleanup(invitationRepo, usageRepo, auditRepo)
	cleanup.Start(jobCtx)

	bg := &BackgroundServices{cancel: cancel, redisClient: redisClient}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(corsMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(loggerMiddleware())

	var apiLimiter, authLimiter, uploadLimiter *middleware.RateLimiter
	if cfg.Security.RateLimiting.Enabled {
		apiCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			apiCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			apiCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}
		apiLimiter = middleware.NewRateLimiter(apiCfg)
		authLimiter = middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		uploadLimiter = middleware.NewRateLimiter(middleware.UploadRateLimitConfig())
		bg.rateLimiters = []*middleware.RateLimiter{apiLimiter, authLimiter, uploadLimiter}
	}

	// Health, readiness, and version
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	// Local-backend blob serving (GetURL on the local backend points here)
	router.GET("/v1/blobs/*blobpath", files.ServeBlobHandler(storageBackend, cfg))

	// Handlers
	authHandlers := authapi.NewHandlers(cfg, userRepo)
	if cfg.Auth.OIDC.Enabled {
		oidcProvider, oidcErr := oidc.NewOIDCProvider(&cfg.Auth.OIDC)
		if oidcErr != nil {
			slog.Error("failed to initialize OIDC provider, SSO disabled", "error", oidcErr, "issuer", cfg.Auth.OIDC.IssuerURL)
		} else {
			authHandlers.SetOIDCProvider(oidcProvider)
			slog.Info("OIDC single sign-on enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}
	orgHandlers := organizations.NewHandlers(orgRepo, invitationRepo, usageRepo, tokenCipher)
	projectHandlers := projects.NewHandlers(projectRepo)
	fileHandlers := files.NewHandlers(cfg, fileRepo, documentRepo, storageBackend)
	chatHandlers := chats.NewHandlers(chatRepo, orgRepo, agent, tokenCipher)
	lcaHandlers := lcaapi.NewHandlers(lcaRepo, calculator)
	locationHandlers := locations.NewHandlers(locationRepo, geoClient)
	adminHandlers := admin.NewHandlers(userRepo, orgRepo, projectRepo, auditRepo, lcaRepo)

	// Public auth endpoints (stricter rate limit)
	authGroup := router.Group("/api/v1/auth")
	if authLimiter != nil {
		authGroup.Use(middleware.RateLimitMiddleware(authLimiter))
	}
	{
		authGroup.POST("/signup", authHandlers.Signup)
		authGroup.POST("/login", authHandlers.Login)
		authGroup.GET("/oidc/login", authHandlers.OIDCLogin)
		authGroup.GET("/oidc/callback", authHandlers.OIDCCallback)
	}

	// Authenticated API
	authed := router.Group("/api/v1")
	if apiLimiter != nil {
		authed.Use(middleware.RateLimitMiddleware(apiLimiter))
	}
	authed.Use(middleware.AuthMiddleware(userRepo))
	authed.Use(middleware.AuditMiddleware(auditRepo))
	{
		authed.GET("/auth/me", authHandlers.Me)
		authed.PATCH("/auth/me", authHandlers.UpdateMe)

		authed.POST("/organizations", orgHandlers.Create)
		authed.GET("/organizations", orgHandlers.ListMine)
		authed.POST("/invitations/accept", orgHandlers.AcceptInvitation)

		authed.GET("/lca/factors", lcaHandlers.ListFactors)
	}

	// Organization-scoped routes, by required role
	orgMember := authed.Group("/organizations/:orgId", middleware.RequireOrgRole(orgRepo, models.RoleMember))
	orgAdmin := authed.Group("/organizations/:orgId", middleware.RequireOrgRole(orgRepo, models.RoleAdmin))
	orgOwner := authed.Group("/organizations/:orgId", middleware.RequireOrgRole(orgRepo, models.RoleOwner))
	{
		orgMember.GET("", orgHandlers.Get)
		orgMember.GET("/members", orgHandlers.ListMembers)
		orgMember.GET("/usage", orgHandlers.Usage)
		orgMember.DELETE("/members/:userId", orgHandlers.RemoveMember)

		orgAdmin.PUT("", orgHandlers.Update)
		orgAdmin.PUT("/members/:userId", orgHandlers.UpdateMemberRole)
		orgAdmin.POST("/invitations", orgHandlers.CreateInvitation)
		orgAdmin.GET("/invitations", orgHandlers.ListInvitations)
		orgAdmin.DELETE("/invitations/:invitationId", orgHandlers.DeleteInvitation)

		orgOwner.DELETE("", orgHandlers.Delete)
		orgOwner.PUT("/ai-key", orgHandlers.SetAIAPIKey)
	}

	// Projects
	orgMember.POST("/projects", projectHandlers.Create)
	orgMember.GET("/projects", projectHandlers.List)

	projMember := orgMember.Group("/projects/:projectId", middleware.RequireProject(projectRepo))
	projAdmin := orgAdmin.Group("/projects/:projectId", middleware.RequireProject(projectRepo))
	{
		projMember.GET("", projectHandlers.Get)
		projAdmin.PUT("", projectHandlers.Update)
		projAdmin.DELETE("", projectHandlers.Delete)

		// Files
		uploadRoute := projMember.Group("")
		if uploadLimiter != nil {
			uploadRoute.Use(middleware.RateLimitMiddleware(uploadLimiter))
		}
		uploadRoute.POST("/files", fileHandlers.Upload)
		projMember.GET("/files", fileHandlers.List)
		projMember.GET("/files/:fileId", fileHandlers.Get)
		projMember.GET("/files/:fileId/download", fileHandlers.Download)
		projMember.POST("/files/:fileId/reindex", fileHandlers.Reindex)
		projMember.DELETE("/files/:fileId", fileHandlers.Delete)

		// Chats (AI quota applies to the model-calling route only)
		projMember.POST("/chats", chatHandlers.Create)
		projMember.GET("/chats", chatHandlers.List)
		projMember.GET("/chats/:chatId", chatHandlers.Get)
		projMember.DELETE("/chats/:chatId", chatHandlers.Delete)
		projMember.POST("/chats/:chatId/messages", aiQuota.Middleware(), chatHandlers.SendMessage)

		// LCA
		projMember.POST("/lca/snapshots", lcaHandlers.CreateSnapshot)
		projMember.GET("/lca/snapshots", lcaHandlers.ListSnapshots)
		projMember.GET("/lca/snapshots/:snapshotId", lcaHandlers.GetSnapshot)
		projMember.PUT("/lca/snapshots/:snapshotId", lcaHandlers.UpdateSnapshot)
		projMember.DELETE("/lca/snapshots/:snapshotId", lcaHandlers.DeleteSnapshot)
		projMember.PUT("/lca/snapshots/:snapshotId/elements", lcaHandlers.PutElements)
		projMember.POST("/lca/snapshots/:snapshotId/compute", lcaHandlers.Compute)

		// Locations
		projMember.POST("/locations/geocode", locationHandlers.Geocode)
		projMember.POST("/locations", locationHandlers.CreateSnapshot)
		projMember.GET("/locations", locationHandlers.List)
		projMember.GET("/locations/:locationId", locationHandlers.Get)
		projMember.DELETE("/locations/:locationId", locationHandlers.Delete)
	}

	// Platform administration
	adminGroup := authed.Group("/admin", middleware.RequireAdmin())
	{
		adminGroup.GET("/users", adminHandlers.ListUsers)
		adminGroup.PUT("/users/:userId", adminHandlers.UpdateUser)
		adminGroup.DELETE("/users/:userId", adminHandlers.DeleteUser)
		adminGroup.GET("/organizations", adminHandlers.ListOrganizations)
		adminGroup.DELETE("/organizations/:orgId", adminHandlers.DeleteOrganization)
		adminGroup.GET("/organizations/:orgId/audit", adminHandlers.OrganizationAudit)
		adminGroup.GET("/stats", adminHandlers.Stats)
		adminGroup.PUT("/lca/factors", adminHandlers.UpsertImpactFactor)
	}

	return router, bg
}

// corsMiddleware builds the CORS policy from configuration.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowOrigins:     cfg.Security.CORS.AllowedOrigins,
		AllowMethods:     cfg.Security.CORS.AllowedMethods,
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(corsCfg)
}

// loggerMiddleware logs one line per request through the structured logger.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(middleware.RequestIDKey),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.Error("request", attrs...)
		} else {
			slog.Info("request", attrs...)
		}
	}
}

// healthCheckHandler reports liveness only; it never touches dependencies.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// readinessHandler probes the database and the storage backend.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"reason": "database unreachable",
			})
			return
		}

		// Exists on a sentinel path verifies the backend is reachable without
		// requiring the path to be present.
		if _, err := store.Exists(ctx, ".readiness-probe"); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"reason": "storage backend unreachable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "grooshub",
			"version": Version,
		})
	}
}

// Version is the build version, overridable at link time.
var Version = "0.1.0"
