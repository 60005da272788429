package organizations

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Column definitions (positional order must match Scan calls)
// ---------------------------------------------------------------------------

// GetByID / GetByName: id, name, display_name, ai_api_key_encrypted,
// created_at, updated_at
var orgCols = []string{"id", "name", "display_name", "ai_api_key_encrypted", "created_at", "updated_at"}

// GetMember: organization_id, user_id, role, created_at
var memberCols = []string{"organization_id", "user_id", "role", "created_at"}

// GetByToken / GetByID: id, organization_id, email, role, token, invited_by,
// accepted_at, expires_at, created_at
var invitationCols = []string{
	"id", "organization_id", "email", "role", "token", "invited_by",
	"accepted_at", "expires_at", "created_at",
}

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).
		AddRow("org-1", "bouwbedrijf", "Bouwbedrijf BV", nil, time.Now(), time.Now())
}

func memberRow(role string) *sqlmock.Rows {
	return sqlmock.NewRows(memberCols).
		AddRow("org-1", "user-2", role, time.Now())
}

func invitationRow(email string, expiresAt time.Time, accepted bool) *sqlmock.Rows {
	var acceptedAt interface{}
	if accepted {
		acceptedAt = time.Now()
	}
	return sqlmock.NewRows(invitationCols).
		AddRow("inv-1", "org-1", email, models.RoleMember, "token-123", "user-9",
			acceptedAt, expiresAt, time.Now())
}

// ---------------------------------------------------------------------------
// Router helpers
// ---------------------------------------------------------------------------

func withIdentity(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUser, &models.User{ID: "user-1", Email: "jan@example.com"})
		c.Set(middleware.ContextUserID, "user-1")
		if orgID := c.Param("orgId"); orgID != "" {
			c.Set(middleware.ContextOrgID, orgID)
			c.Set(middleware.ContextOrgRole, role)
		}
		c.Next()
	}
}

func newRouter(t *testing.T, role string) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })

	h := NewHandlers(
		repositories.NewOrganizationRepository(db),
		repositories.NewInvitationRepository(db),
		repositories.NewUsageRepository(db),
		nil,
	)

	r := gin.New()
	r.POST("/api/v1/organizations", withIdentity(role), h.Create)
	r.POST("/api/v1/invitations/accept", withIdentity(role), h.AcceptInvitation)
	g := r.Group("/api/v1/organizations/:orgId", withIdentity(role))
	g.GET("", h.Get)
	g.PUT("/members/:userId", h.UpdateMemberRole)
	g.DELETE("/members/:userId", h.RemoveMember)
	g.POST("/invitations", h.CreateInvitation)
	g.DELETE("/invitations/:invitationId", h.DeleteInvitation)
	return mock, r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_Success(t *testing.T) {
	mock, r := newRouter(t, models.RoleOwner)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").
		WillReturnRows(sqlmock.NewRows(orgCols))
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("org-1", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO organization_members").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/api/v1/organizations",
		`{"name":"Bouwbedrijf","display_name":"Bouwbedrijf BV"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("creator was not added as owner: %v", err)
	}
}

func TestCreate_InvalidSlug(t *testing.T) {
	_, r := newRouter(t, models.RoleOwner)

	w := doJSON(r, http.MethodPost, "/api/v1/organizations",
		`{"name":"Bouw Bedrijf!"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	mock, r := newRouter(t, models.RoleOwner)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").
		WillReturnRows(sampleOrgRow())

	w := doJSON(r, http.MethodPost, "/api/v1/organizations",
		`{"name":"bouwbedrijf"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGet_ReportsKeyPresence(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	sealed := "versleutelde-sleutel"
	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols).
			AddRow("org-1", "bouwbedrijf", "Bouwbedrijf BV", sealed, time.Now(), time.Now()))

	w := doJSON(r, http.MethodGet, "/api/v1/organizations/org-1", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"has_ai_api_key":true`)) {
		t.Errorf("body does not report key presence: %s", w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte(sealed)) {
		t.Errorf("encrypted key leaked in response: %s", w.Body.String())
	}
}

func TestGet_DBError(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").WillReturnError(errDB)

	w := doJSON(r, http.MethodGet, "/api/v1/organizations/org-1", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Member role changes
// ---------------------------------------------------------------------------

func TestUpdateMemberRole_BlocksLastOwnerDemotion(t *testing.T) {
	mock, r := newRouter(t, models.RoleAdmin)

	mock.ExpectQuery("SELECT.*FROM organization_members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleOwner))
	mock.ExpectQuery("SELECT COUNT.*FROM organization_members").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := doJSON(r, http.MethodPut, "/api/v1/organizations/org-1/members/user-2",
		`{"role":"member"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

func TestUpdateMemberRole_InvalidRole(t *testing.T) {
	_, r := newRouter(t, models.RoleAdmin)

	w := doJSON(r, http.MethodPut, "/api/v1/organizations/org-1/members/user-2",
		`{"role":"superuser"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRemoveMember_SelfRemovalAllowed(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	row := sqlmock.NewRows(memberCols).AddRow("org-1", "user-1", models.RoleMember, time.Now())
	mock.ExpectQuery("SELECT.*FROM organization_members.*WHERE organization_id").
		WillReturnRows(row)
	mock.ExpectExec("DELETE FROM organization_members").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodDelete, "/api/v1/organizations/org-1/members/user-1", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestRemoveMember_OthersRequireAdmin(t *testing.T) {
	_, r := newRouter(t, models.RoleMember)

	w := doJSON(r, http.MethodDelete, "/api/v1/organizations/org-1/members/user-2", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRemoveMember_BlocksLastOwner(t *testing.T) {
	mock, r := newRouter(t, models.RoleAdmin)

	mock.ExpectQuery("SELECT.*FROM organization_members.*WHERE organization_id").
		WillReturnRows(memberRow(models.RoleOwner))
	mock.ExpectQuery("SELECT COUNT.*FROM organization_members").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := doJSON(r, http.MethodDelete, "/api/v1/organizations/org-1/members/user-2", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

func TestCreateInvitation_ReturnsTokenOnce(t *testing.T) {
	mock, r := newRouter(t, models.RoleAdmin)

	mock.ExpectQuery("INSERT INTO invitations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("inv-1", time.Now()))

	w := doJSON(r, http.MethodPost, "/api/v1/organizations/org-1/invitations",
		`{"email":"piet@example.com","role":"member"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"token"`)) {
		t.Errorf("response does not contain the raw token: %s", w.Body.String())
	}
}

func TestCreateInvitation_CannotGrantOwnership(t *testing.T) {
	_, r := newRouter(t, models.RoleAdmin)

	w := doJSON(r, http.MethodPost, "/api/v1/organizations/org-1/invitations",
		`{"email":"piet@example.com","role":"owner"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteInvitation_OtherOrg(t *testing.T) {
	mock, r := newRouter(t, models.RoleAdmin)

	row := sqlmock.NewRows(invitationCols).
		AddRow("inv-1", "andere-org", "piet@example.com", models.RoleMember,
			"token-123", "user-9", nil, time.Now().Add(time.Hour), time.Now())
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE id").WillReturnRows(row)

	w := doJSON(r, http.MethodDelete, "/api/v1/organizations/org-1/invitations/inv-1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// AcceptInvitation
// ---------------------------------------------------------------------------

func TestAcceptInvitation_Success(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(invitationRow("jan@example.com", time.Now().Add(time.Hour), false))
	mock.ExpectQuery("SELECT.*FROM organization_members.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(memberCols))
	mock.ExpectExec("INSERT INTO organization_members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invitations SET accepted_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/api/v1/invitations/accept", `{"token":"token-123"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitation_WrongEmail(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(invitationRow("piet@example.com", time.Now().Add(time.Hour), false))

	w := doJSON(r, http.MethodPost, "/api/v1/invitations/accept", `{"token":"token-123"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestAcceptInvitation_Expired(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(invitationRow("jan@example.com", time.Now().Add(-time.Hour), false))

	w := doJSON(r, http.MethodPost, "/api/v1/invitations/accept", `{"token":"token-123"}`)
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

func TestAcceptInvitation_AlreadyAccepted(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(invitationRow("jan@example.com", time.Now().Add(time.Hour), true))

	w := doJSON(r, http.MethodPost, "/api/v1/invitations/accept", `{"token":"token-123"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestAcceptInvitation_AlreadyMember(t *testing.T) {
	mock, r := newRouter(t, models.RoleMember)

	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(invitationRow("jan@example.com", time.Now().Add(time.Hour), false))
	mock.ExpectQuery("SELECT.*FROM organization_members.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("org-1", "user-1", models.RoleMember, time.Now()))

	w := doJSON(r, http.MethodPost, "/api/v1/invitations/accept", `{"token":"token-123"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Name validation
// ---------------------------------------------------------------------------

func TestNameRe(t *testing.T) {
	valid := []string{"a", "bouwbedrijf", "bouw-bedrijf-2", "x0"}
	for _, name := range valid {
		if !nameRe.MatchString(name) {
			t.Errorf("nameRe rejected valid name %q", name)
		}
	}
	invalid := []string{"", "-bouw", "bouw-", "Bouw", "bouw bedrijf", "a_b"}
	for _, name := range invalid {
		if nameRe.MatchString(name) {
			t.Errorf("nameRe accepted invalid name %q", name)
		}
	}
}
