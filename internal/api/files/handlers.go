// Package files implements project document upload, listing, download, and
// deletion against the configured storage backend. Text-extractable uploads
// are queued for RAG indexing by setting index_status to 'pending'; everything
// else stays 'skipped'.
package files

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
	"github.com/grooshub/grooshub/internal/storage"
	"github.com/grooshub/grooshub/internal/telemetry"
)

// downloadURLTTL is the lifetime of signed download URLs issued for cloud
// backends.
const downloadURLTTL = 15 * time.Minute

// indexableTypes are content types the chunker can extract text from.
var indexableTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"text/html":        true,
	"application/json": true,
}

// indexableExtensions cover uploads whose content type is a generic octet
// stream but whose extension marks them as text.
var indexableExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// Handlers bundles the file endpoints.
type Handlers struct {
	cfg   *config.Config
	files *repositories.FileRepository
	docs  *repositories.DocumentRepository
	store storage.Storage
}

// NewHandlers creates the file handlers.
func NewHandlers(
	cfg *config.Config,
	files *repositories.FileRepository,
	docs *repositories.DocumentRepository,
	store storage.Storage,
) *Handlers {
	return &Handlers{cfg: cfg, files: files, docs: docs, store: store}
}

// Upload handles POST /api/v1/organizations/:orgId/projects/:projectId/files
// Multipart form with a single "file" part.
func (h *Handlers) Upload(c *gin.Context) {
	user := middleware.CurrentUser(c)
	project := middleware.CurrentProject(c)
	backend := h.cfg.Storage.DefaultBackend

	maxBytes := h.cfg.Storage.MaxUploadBytes
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or oversized 'file' form field"})
		return
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File exceeds the %d byte upload limit", maxBytes),
		})
		return
	}

	name := sanitizeFileName(fileHeader.Filename)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Strip charset parameters so classification below sees the bare type.
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	storagePath := fmt.Sprintf("%s/%s/%s_%s", project.OrganizationID, project.ID, uuid.New().String(), name)

	result, err := h.store.Upload(c.Request.Context(), storagePath, src, fileHeader.Size)
	if err != nil {
		telemetry.FileUploadsTotal.WithLabelValues(backend, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	indexStatus := models.IndexStatusSkipped
	if isIndexable(contentType, name) {
		indexStatus = models.IndexStatusPending
	}

	file := &models.File{
		ProjectID:   project.ID,
		UploadedBy:  &user.ID,
		Name:        name,
		StoragePath: result.Path,
		ContentType: contentType,
		SizeBytes:   result.Size,
		Checksum:    result.Checksum,
		IndexStatus: indexStatus,
	}
	if err := h.files.Create(c.Request.Context(), file); err != nil {
		// Metadata write failed, do not leave an orphan blob behind.
		_ = h.store.Delete(c.Request.Context(), result.Path)
		telemetry.FileUploadsTotal.WithLabelValues(backend, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record file"})
		return
	}

	telemetry.FileUploadsTotal.WithLabelValues(backend, "ok").Inc()
	telemetry.FileUploadBytes.Add(float64(result.Size))

	c.JSON(http.StatusCreated, gin.H{"file": file})
}

// List handles GET /api/v1/organizations/:orgId/projects/:projectId/files
func (h *Handlers) List(c *gin.Context) {
	limit, offset := pagination(c)
	project := middleware.CurrentProject(c)

	files, err := h.files.ListByProject(c.Request.Context(), project.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list files"})
		return
	}
	total, err := h.files.CountByProject(c.Request.Context(), project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"meta": gin.H{
			"limit":  limit,
			"offset": offset,
			"total":  total,
		},
	})
}

// Get handles GET /api/v1/organizations/:orgId/projects/:projectId/files/:fileId
// Returns the file metadata plus a short-lived download URL.
func (h *Handlers) Get(c *gin.Context) {
	file := h.projectFile(c)
	if file == nil {
		return
	}

	resp := gin.H{"file": file}
	if url, err := h.store.GetURL(c.Request.Context(), file.StoragePath, downloadURLTTL); err == nil {
		resp["download_url"] = url
	}

	c.JSON(http.StatusOK, resp)
}

// Download handles GET /api/v1/organizations/:orgId/projects/:projectId/files/:fileId/download
// Streams the blob through the API so the endpoint works identically across
// storage backends.
func (h *Handlers) Download(c *gin.Context) {
	file := h.projectFile(c)
	if file == nil {
		return
	}

	reader, err := h.store.Download(c.Request.Context(), file.StoragePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download file"})
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.DataFromReader(http.StatusOK, file.SizeBytes, file.ContentType, reader, nil)
}

// Delete handles DELETE /api/v1/organizations/:orgId/projects/:projectId/files/:fileId
// Removes the blob, its index chunks, and the metadata row.
func (h *Handlers) Delete(c *gin.Context) {
	file := h.projectFile(c)
	if file == nil {
		return
	}

	if err := h.docs.DeleteByFile(c.Request.Context(), file.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete index chunks"})
		return
	}
	if err := h.store.Delete(c.Request.Context(), file.StoragePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete stored file"})
		return
	}
	if err := h.files.Delete(c.Request.Context(), file.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete file record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}

// Reindex handles POST /api/v1/organizations/:orgId/projects/:projectId/files/:fileId/reindex
// Queues an indexable file for (re-)indexing.
func (h *Handlers) Reindex(c *gin.Context) {
	file := h.projectFile(c)
	if file == nil {
		return
	}

	if !isIndexable(file.ContentType, file.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File content type is not indexable"})
		return
	}

	if err := h.files.SetIndexStatus(c.Request.Context(), file.ID, models.IndexStatusPending, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue file for indexing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "File queued for indexing"})
}

// ServeBlobHandler serves GET /v1/blobs/*blobpath for the local backend when
// serve_directly is enabled. GetURL on the local backend points here.
func ServeBlobHandler(store storage.Storage, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Storage.DefaultBackend != "local" || !cfg.Storage.Local.ServeDirectly {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		path := strings.TrimPrefix(c.Param("blobpath"), "/")
		if path == "" || strings.Contains(path, "..") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
			return
		}

		reader, err := store.Download(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		defer reader.Close()

		meta, err := store.GetMetadata(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file metadata"})
			return
		}

		c.DataFromReader(http.StatusOK, meta.Size, "application/octet-stream", reader, map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(path)),
		})
	}
}

// projectFile loads :fileId and verifies it belongs to the current project.
// Writes the error response and returns nil when the file is unavailable.
func (h *Handlers) projectFile(c *gin.Context) *models.File {
	project := middleware.CurrentProject(c)

	file, err := h.files.GetByID(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load file"})
		return nil
	}
	if file == nil || file.ProjectID != project.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return nil
	}
	return file
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func isIndexable(contentType, name string) bool {
	if indexableTypes[contentType] {
		return true
	}
	return indexableExtensions[strings.ToLower(filepath.Ext(name))]
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
