package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/auth"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

func newAuthTestRouter(t *testing.T, mockSetup func(sqlmock.Sqlmock)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if mockSetup != nil {
		mockSetup(mock)
	}

	userRepo := repositories.NewUserRepository(db)
	r := gin.New()
	r.Use(AuthMiddleware(userRepo))
	r.GET("/protected", func(c *gin.Context) {
		user := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
	})
	return r
}

func userRowFor(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "oidc_sub", "is_admin", "created_at", "updated_at"}).
		AddRow(id, "alice@example.com", "Alice", nil, nil, false, time.Now(), time.Now())
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := newAuthTestRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r := newAuthTestRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r := newAuthTestRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r := newAuthTestRouter(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
			WithArgs("user-1").
			WillReturnRows(userRowFor("user-1"))
	})

	token, err := auth.GenerateJWT("user-1", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware_UserDeleted(t *testing.T) {
	r := newAuthTestRouter(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
			WithArgs("user-gone").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "oidc_sub", "is_admin", "created_at", "updated_at"}))
	})

	token, err := auth.GenerateJWT("user-gone", "gone@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireOrgRole
// ---------------------------------------------------------------------------

func newOrgRoleRouter(t *testing.T, requiredRole string, mockSetup func(sqlmock.Sqlmock)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if mockSetup != nil {
		mockSetup(mock)
	}

	orgRepo := repositories.NewOrganizationRepository(db)
	r := gin.New()
	r.GET("/orgs/:orgId/resource", func(c *gin.Context) {
		// Simulate an authenticated user ahead of the role check.
		c.Set(ContextUser, &models.User{ID: "user-1"})
		c.Next()
	}, RequireOrgRole(orgRepo, requiredRole), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"org": CurrentOrgID(c)})
	})
	return r
}

func memberRow(role string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"organization_id", "user_id", "role", "created_at"}).
		AddRow("org-1", "user-1", role, time.Now())
}

func TestRequireOrgRole_MemberAllowed(t *testing.T) {
	r := newOrgRoleRouter(t, models.RoleMember, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT.*FROM organization_members").
			WithArgs("org-1", "user-1").
			WillReturnRows(memberRow(models.RoleMember))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orgs/org-1/resource", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequireOrgRole_MemberDeniedAdminAction(t *testing.T) {
	r := newOrgRoleRouter(t, models.RoleAdmin, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT.*FROM organization_members").
			WithArgs("org-1", "user-1").
			WillReturnRows(memberRow(models.RoleMember))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orgs/org-1/resource", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRequireOrgRole_NonMemberGets404(t *testing.T) {
	r := newOrgRoleRouter(t, models.RoleMember, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT.*FROM organization_members").
			WithArgs("org-1", "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"organization_id", "user_id", "role", "created_at"}))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orgs/org-1/resource", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for non-member", w.Code)
	}
}
