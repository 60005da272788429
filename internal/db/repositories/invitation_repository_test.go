package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/grooshub/grooshub/internal/db/models"
)

var invitationCols = []string{"id", "organization_id", "email", "role", "token", "invited_by", "accepted_at", "expires_at", "created_at"}

func sampleInvitationRow() *sqlmock.Rows {
	return sqlmock.NewRows(invitationCols).
		AddRow("inv-1", "org-1", "bob@example.com", models.RoleMember, "tok-abc", "user-1",
			nil, time.Now().Add(72*time.Hour), time.Now())
}

func newInvitationRepo(t *testing.T) (*InvitationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewInvitationRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetByToken
// ---------------------------------------------------------------------------

func TestGetInvitationByToken_Found(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WithArgs("tok-abc").
		WillReturnRows(sampleInvitationRow())

	inv, err := repo.GetByToken(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv == nil {
		t.Fatal("expected invitation, got nil")
	}
	if inv.IsAccepted() {
		t.Error("expected unaccepted invitation")
	}
	if inv.IsExpired() {
		t.Error("expected unexpired invitation")
	}
}

func TestGetInvitationByToken_NotFound(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WithArgs("tok-missing").
		WillReturnRows(sqlmock.NewRows(invitationCols))

	inv, err := repo.GetByToken(context.Background(), "tok-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv != nil {
		t.Errorf("expected nil invitation, got %v", inv)
	}
}

// ---------------------------------------------------------------------------
// MarkAccepted
// ---------------------------------------------------------------------------

func TestMarkAccepted_Success(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectExec("UPDATE invitations SET accepted_at").
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkAccepted(context.Background(), "inv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkAccepted_AlreadyUsed(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectExec("UPDATE invitations SET accepted_at").
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkAccepted(context.Background(), "inv-1"); err == nil {
		t.Error("expected error for already accepted invitation, got nil")
	}
}

// ---------------------------------------------------------------------------
// DeleteExpired
// ---------------------------------------------------------------------------

func TestDeleteExpiredInvitations(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectExec("DELETE FROM invitations WHERE accepted_at IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
}
