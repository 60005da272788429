package jobs

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/grooshub/grooshub/internal/db/repositories"
)

func newCleanup(t *testing.T) (sqlmock.Sqlmock, *Cleanup) {
	t.Helper()
	db, mock, _ := sqlmock.New()
	t.Cleanup(func() { db.Close() })

	c := NewCleanup(
		repositories.NewInvitationRepository(db),
		repositories.NewUsageRepository(db),
		repositories.NewAuditRepository(db),
	)
	return mock, c
}

func TestCleanup_RunOnce(t *testing.T) {
	mock, c := newCleanup(t)

	mock.ExpectExec("DELETE FROM invitations").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM ai_usage").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("DELETE FROM audit_logs").WillReturnResult(sqlmock.NewResult(0, 9))

	c.runOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A failure in one purge must not stop the others.
func TestCleanup_RunOnce_ContinuesAfterError(t *testing.T) {
	mock, c := newCleanup(t)

	mock.ExpectExec("DELETE FROM invitations").WillReturnError(errTest)
	mock.ExpectExec("DELETE FROM ai_usage").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	c.runOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("later purges did not run: %v", err)
	}
}
