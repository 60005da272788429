package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/grooshub/grooshub/internal/db/models"
)

var projectCols = []string{"id", "organization_id", "name", "description", "address", "status", "created_by", "created_at", "updated_at"}

func sampleProjectRow() *sqlmock.Rows {
	creator := "user-1"
	return sqlmock.NewRows(projectCols).
		AddRow("proj-1", "org-1", "Harbor Towers", "Mixed-use development", "Kade 12, Rotterdam", "active", &creator, time.Now(), time.Now())
}

func newProjectRepo(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProjectRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestGetProjectByID_Found(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE id").
		WithArgs("proj-1").
		WillReturnRows(sampleProjectRow())

	project, err := repo.GetByID(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project == nil {
		t.Fatal("expected project, got nil")
	}
	if project.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %s, want org-1", project.OrganizationID)
	}
}

func TestGetProjectByID_NotFound(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(projectCols))

	project, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project != nil {
		t.Errorf("expected nil project, got %v", project)
	}
}

// ---------------------------------------------------------------------------
// Create / Update
// ---------------------------------------------------------------------------

func TestCreateProject_Success(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("INSERT INTO projects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("proj-new", time.Now(), time.Now()))

	project := &models.Project{
		OrganizationID: "org-1",
		Name:           "Harbor Towers",
		Status:         models.ProjectStatusActive,
	}
	if err := repo.Create(context.Background(), project); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.ID != "proj-new" {
		t.Errorf("ID = %s, want proj-new", project.ID)
	}
}

func TestUpdateProject_DBError(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectExec("UPDATE projects").
		WillReturnError(errDB)

	project := &models.Project{ID: "proj-1", Name: "Renamed"}
	if err := repo.Update(context.Background(), project); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListByOrganization
// ---------------------------------------------------------------------------

func TestListProjectsByOrganization(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE organization_id").
		WithArgs("org-1", 20, 0).
		WillReturnRows(sampleProjectRow())

	projects, err := repo.ListByOrganization(context.Background(), "org-1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("len(projects) = %d, want 1", len(projects))
	}
}

func TestListProjectsByOrganization_Empty(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE organization_id").
		WithArgs("org-2", 20, 0).
		WillReturnRows(sqlmock.NewRows(projectCols))

	projects, err := repo.ListByOrganization(context.Background(), "org-2", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("len(projects) = %d, want 0", len(projects))
	}
}
