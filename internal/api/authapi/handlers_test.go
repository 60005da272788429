package authapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/auth"
	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("GROOS_JWT_SECRET", "test-only-secret-0123456789abcdef0123456789abcdef")
}

var errDB = errors.New("db error")

// GetByEmail / GetByID: id, email, name, password_hash, oidc_sub, is_admin,
// created_at, updated_at
var userCols = []string{
	"id", "email", "name", "password_hash", "oidc_sub", "is_admin",
	"created_at", "updated_at",
}

func userRowWithPassword(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "jan@example.com", "Jan", hash, nil, false,
			time.Now(), time.Now())
}

func testConfig(allowSignup bool) *config.Config {
	cfg := &config.Config{}
	cfg.MultiTenancy.AllowPublicSignup = allowSignup
	cfg.Auth.SessionTTL = time.Hour
	return cfg
}

func newRouter(t *testing.T, cfg *config.Config) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })

	h := NewHandlers(cfg, repositories.NewUserRepository(db))

	r := gin.New()
	r.POST("/api/v1/auth/signup", h.Signup)
	r.POST("/api/v1/auth/login", h.Login)
	r.GET("/api/v1/auth/me", func(c *gin.Context) {
		c.Set(middleware.ContextUser, &models.User{ID: "user-1", Email: "jan@example.com", Name: "Jan"})
		h.Me(c)
	})
	r.GET("/api/v1/auth/oidc/login", h.OIDCLogin)
	return mock, r
}

func doPOST(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestSignup_Success(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("user-1", time.Now(), time.Now()))

	w := doPOST(r, "/api/v1/auth/signup",
		`{"email":"Jan@Example.com","name":"Jan","password":"wachtwoord123"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"token"`)) {
		t.Errorf("body does not contain a session token: %s", w.Body.String())
	}
}

func TestSignup_Disabled(t *testing.T) {
	_, r := newRouter(t, testConfig(false))

	w := doPOST(r, "/api/v1/auth/signup",
		`{"email":"jan@example.com","name":"Jan","password":"wachtwoord123"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, "wachtwoord123"))

	w := doPOST(r, "/api/v1/auth/signup",
		`{"email":"jan@example.com","name":"Jan","password":"wachtwoord123"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSignup_ShortPassword(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))

	w := doPOST(r, "/api/v1/auth/signup",
		`{"email":"jan@example.com","name":"Jan","password":"kort"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
}

func TestSignup_InvalidEmail(t *testing.T) {
	_, r := newRouter(t, testConfig(true))

	w := doPOST(r, "/api/v1/auth/signup",
		`{"email":"not-an-email","name":"Jan","password":"wachtwoord123"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, "wachtwoord123"))

	w := doPOST(r, "/api/v1/auth/login",
		`{"email":"jan@example.com","password":"wachtwoord123"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"token"`)) {
		t.Errorf("body does not contain a session token: %s", w.Body.String())
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))

	w := doPOST(r, "/api/v1/auth/login",
		`{"email":"nobody@example.com","password":"wachtwoord123"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, "wachtwoord123"))

	w := doPOST(r, "/api/v1/auth/login",
		`{"email":"jan@example.com","password":"verkeerd-wachtwoord"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// Unknown email and wrong password must be indistinguishable to the caller.
func TestLogin_NoAccountEnumeration(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))
	wUnknown := doPOST(r, "/api/v1/auth/login",
		`{"email":"nobody@example.com","password":"wachtwoord123"}`)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, "wachtwoord123"))
	wWrong := doPOST(r, "/api/v1/auth/login",
		`{"email":"jan@example.com","password":"verkeerd-wachtwoord"}`)

	if wUnknown.Code != wWrong.Code || wUnknown.Body.String() != wWrong.Body.String() {
		t.Errorf("responses differ: %d %s vs %d %s",
			wUnknown.Code, wUnknown.Body.String(), wWrong.Code, wWrong.Body.String())
	}
}

func TestLogin_DBError(t *testing.T) {
	mock, r := newRouter(t, testConfig(true))

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").WillReturnError(errDB)

	w := doPOST(r, "/api/v1/auth/login",
		`{"email":"jan@example.com","password":"wachtwoord123"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Me / OIDC
// ---------------------------------------------------------------------------

func TestMe_ReturnsContextUser(t *testing.T) {
	_, r := newRouter(t, testConfig(true))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("jan@example.com")) {
		t.Errorf("body does not contain user email: %s", w.Body.String())
	}
}

func TestOIDCLogin_NotConfigured(t *testing.T) {
	_, r := newRouter(t, testConfig(true))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/auth/oidc/login", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
