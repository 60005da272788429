package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newUsageRepo(t *testing.T) (*UsageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUsageRepository(db), mock
}

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Increment
// ---------------------------------------------------------------------------

func TestIncrementUsage_FirstCallOfDay(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO ai_usage").
		WithArgs("org-1", "2026-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"calls"}).AddRow(1))

	calls, err := repo.Increment(context.Background(), "org-1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIncrementUsage_ExistingRow(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO ai_usage").
		WithArgs("org-1", "2026-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"calls"}).AddRow(42))

	calls, err := repo.Increment(context.Background(), "org-1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 42 {
		t.Errorf("calls = %d, want 42", calls)
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGetUsage_NoRowIsZero(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT calls FROM ai_usage").
		WithArgs("org-1", "2026-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"calls"}))

	calls, err := repo.Get(context.Background(), "org-1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestGetUsage_DBError(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("SELECT calls FROM ai_usage").
		WithArgs("org-1", "2026-03-14").
		WillReturnError(errDB)

	if _, err := repo.Get(context.Background(), "org-1", testDay); err == nil {
		t.Error("expected error, got nil")
	}
}
