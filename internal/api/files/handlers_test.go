package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
	"github.com/grooshub/grooshub/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Mock storage
// ---------------------------------------------------------------------------

type mockStore struct {
	uploadErr   error
	downloadErr error
	getURLErr   error
	metadataErr error
	deleted     []string
}

func (m *mockStore) Upload(_ context.Context, path string, _ io.Reader, size int64) (*storage.UploadResult, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return &storage.UploadResult{Path: path, Size: size, Checksum: "abc123"}, nil
}
func (m *mockStore) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	return io.NopCloser(bytes.NewReader([]byte("bestandsinhoud"))), nil
}
func (m *mockStore) Delete(_ context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return nil
}
func (m *mockStore) GetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	if m.getURLErr != nil {
		return "", m.getURLErr
	}
	return "http://localhost:8080/v1/blobs/" + path, nil
}
func (m *mockStore) Exists(_ context.Context, _ string) (bool, error) { return true, nil }
func (m *mockStore) GetMetadata(_ context.Context, path string) (*storage.FileMetadata, error) {
	if m.metadataErr != nil {
		return nil, m.metadataErr
	}
	return &storage.FileMetadata{Path: path, Size: 14, Checksum: "abc123"}, nil
}

// ---------------------------------------------------------------------------
// Column definitions (positional order must match Scan calls)
// ---------------------------------------------------------------------------

// GetByID / ListByProject: id, project_id, uploaded_by, name, storage_path,
// content_type, size_bytes, checksum, index_status, index_error, created_at,
// updated_at
var fileCols = []string{
	"id", "project_id", "uploaded_by", "name", "storage_path", "content_type",
	"size_bytes", "checksum", "index_status", "index_error", "created_at", "updated_at",
}

func sampleFileRow(contentType, name string) *sqlmock.Rows {
	return sqlmock.NewRows(fileCols).
		AddRow("file-1", "proj-1", "user-1", name, "org-1/proj-1/blob_"+name,
			contentType, int64(14), "abc123", models.IndexStatusIndexed, "",
			time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// Router helpers
// ---------------------------------------------------------------------------

func testProject() *models.Project {
	return &models.Project{ID: "proj-1", OrganizationID: "org-1", Name: "Hoofdkantoor"}
}

func withIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUser, &models.User{ID: "user-1", Email: "jan@example.com"})
		c.Set(middleware.ContextUserID, "user-1")
		c.Set(middleware.ContextOrgID, "org-1")
		c.Set(middleware.ContextProject, testProject())
		c.Next()
	}
}

func newRouter(t *testing.T, store *mockStore, cfg *config.Config) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })

	if cfg == nil {
		cfg = &config.Config{}
		cfg.Storage.DefaultBackend = "local"
	}
	h := NewHandlers(cfg, repositories.NewFileRepository(db), repositories.NewDocumentRepository(db), store)

	r := gin.New()
	g := r.Group("/api/v1/organizations/:orgId/projects/:projectId", withIdentity())
	g.POST("/files", h.Upload)
	g.GET("/files", h.List)
	g.GET("/files/:fileId", h.Get)
	g.GET("/files/:fileId/download", h.Download)
	g.POST("/files/:fileId/reindex", h.Reindex)
	g.DELETE("/files/:fileId", h.Delete)
	return mock, r
}

func multipartBody(t *testing.T, fieldName, fileName, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("part.Write: %v", err)
	}
	w.Close()
	return buf, w.FormDataContentType()
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestUpload_Success_IndexableText(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("INSERT INTO files").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("file-1", time.Now(), time.Now()))

	body, contentType := multipartBody(t, "file", "notities.txt", "text/plain; charset=utf-8", "bestandsinhoud")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"index_status":"pending"`)) {
		t.Errorf("indexable upload not queued: %s", w.Body.String())
	}
}

func TestUpload_BinarySkipsIndexing(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("INSERT INTO files").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("file-1", time.Now(), time.Now()))

	body, contentType := multipartBody(t, "file", "model.ifc", "application/octet-stream", "binary")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"index_status":"skipped"`)) {
		t.Errorf("binary upload should be skipped: %s", w.Body.String())
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	store := &mockStore{}
	_, r := newRouter(t, store, nil)

	body, contentType := multipartBody(t, "document", "notities.txt", "text/plain", "x")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpload_OverLimit(t *testing.T) {
	store := &mockStore{}
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "local"
	cfg.Storage.MaxUploadBytes = 4
	_, r := newRouter(t, store, cfg)

	body, contentType := multipartBody(t, "file", "groot.txt", "text/plain", "meer dan vier bytes")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	// MaxBytesReader rejects the body before the form parses, so either the
	// 400 or the explicit 413 branch is acceptable.
	if w.Code != http.StatusBadRequest && w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 400 or 413", w.Code)
	}
}

func TestUpload_MetadataFailureDeletesBlob(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("INSERT INTO files").WillReturnError(errDB)

	body, contentType := multipartBody(t, "file", "notities.txt", "text/plain", "bestandsinhoud")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if len(store.deleted) != 1 {
		t.Errorf("orphan blob not cleaned up, deleted = %v", store.deleted)
	}
}

// ---------------------------------------------------------------------------
// Get / Download
// ---------------------------------------------------------------------------

func TestGet_IncludesDownloadURL(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").
		WillReturnRows(sampleFileRow("text/plain", "notities.txt"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/projects/proj-1/files/file-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("download_url")) {
		t.Errorf("body does not contain download_url: %s", w.Body.String())
	}
}

func TestGet_WrongProject(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	row := sqlmock.NewRows(fileCols).
		AddRow("file-1", "ander-project", "user-1", "notities.txt", "pad",
			"text/plain", int64(14), "abc123", models.IndexStatusIndexed, "",
			time.Now(), time.Now())
	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").WillReturnRows(row)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/projects/proj-1/files/file-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDownload_StreamsContent(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").
		WillReturnRows(sampleFileRow("text/plain", "notities.txt"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/projects/proj-1/files/file-1/download", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "bestandsinhoud" {
		t.Errorf("body = %q, want file content", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !bytes.Contains([]byte(cd), []byte("notities.txt")) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

// ---------------------------------------------------------------------------
// Reindex / Delete
// ---------------------------------------------------------------------------

func TestReindex_QueuesIndexableFile(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").
		WillReturnRows(sampleFileRow("text/plain", "notities.txt"))
	mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files/file-1/reindex", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202; body: %s", w.Code, w.Body.String())
	}
}

func TestReindex_RejectsBinary(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").
		WillReturnRows(sampleFileRow("application/octet-stream", "model.ifc"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/projects/proj-1/files/file-1/reindex", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDelete_RemovesChunksBlobAndRecord(t *testing.T) {
	store := &mockStore{}
	mock, r := newRouter(t, store, nil)

	mock.ExpectQuery("SELECT.*FROM files.*WHERE id").
		WillReturnRows(sampleFileRow("text/plain", "notities.txt"))
	mock.ExpectExec("DELETE FROM document_chunks").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM files").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/organizations/org-1/projects/proj-1/files/file-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if len(store.deleted) != 1 {
		t.Errorf("blob not deleted, deleted = %v", store.deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ServeBlobHandler
// ---------------------------------------------------------------------------

func newBlobRouter(store *mockStore, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.GET("/v1/blobs/*blobpath", ServeBlobHandler(store, cfg))
	return r
}

func TestServeBlob_Success(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "local"
	cfg.Storage.Local.ServeDirectly = true
	r := newBlobRouter(&mockStore{}, cfg)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/blobs/org-1/proj-1/blob_notities.txt", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestServeBlob_RejectsTraversal(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "local"
	cfg.Storage.Local.ServeDirectly = true
	r := newBlobRouter(&mockStore{}, cfg)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/blobs/..%2F..%2Fetc%2Fpasswd", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServeBlob_DisabledBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "s3"
	r := newBlobRouter(&mockStore{}, cfg)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/blobs/org-1/proj-1/blob.txt", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notities.txt", "notities.txt"},
		{"  rapport.pdf  ", "rapport.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\jan\bestand.txt`, "bestand.txt"},
		{"..", ""},
		{".", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsIndexable(t *testing.T) {
	cases := []struct {
		contentType string
		name        string
		want        bool
	}{
		{"text/plain", "notities.txt", true},
		{"text/markdown", "README.md", true},
		{"application/json", "data.json", true},
		{"application/octet-stream", "notities.TXT", true},
		{"application/octet-stream", "model.ifc", false},
		{"application/pdf", "rapport.pdf", false},
	}
	for _, tc := range cases {
		if got := isIndexable(tc.contentType, tc.name); got != tc.want {
			t.Errorf("isIndexable(%q, %q) = %v, want %v", tc.contentType, tc.name, got, tc.want)
		}
	}
}
