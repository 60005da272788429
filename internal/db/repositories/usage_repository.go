// usage_repository.go implements UsageRepository, tracking per-organization
// daily AI call counts for quota enforcement. Postgres is authoritative here;
// the Redis limiter in front of it is only a fast-path throttle.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UsageRepository handles database operations for AI usage accounting
type UsageRepository struct {
	db *sql.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Increment adds one call to the organization's counter for the given day and
// returns the new total. The upsert makes first-call-of-the-day and concurrent
// increments safe without a prior read.
func (r *UsageRepository) Increment(ctx context.Context, orgID string, day time.Time) (int, error) {
	query := `
		INSERT INTO ai_usage (organization_id, day, calls)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, day)
		DO UPDATE SET calls = ai_usage.calls + 1
		RETURNING calls
	`

	var calls int
	err := r.db.QueryRowContext(ctx, query, orgID, day.Format("2006-01-02")).Scan(&calls)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return calls, nil
}

// Get returns the organization's call count for the given day. Zero if no row
// exists yet.
func (r *UsageRepository) Get(ctx context.Context, orgID string, day time.Time) (int, error) {
	query := `SELECT calls FROM ai_usage WHERE organization_id = $1 AND day = $2`

	var calls int
	err := r.db.QueryRowContext(ctx, query, orgID, day.Format("2006-01-02")).Scan(&calls)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}

	return calls, nil
}

// DeleteOlderThan removes usage rows older than the given day. Returns the
// number of rows removed. Called by the background retention job.
func (r *UsageRepository) DeleteOlderThan(ctx context.Context, day time.Time) (int64, error) {
	query := `DELETE FROM ai_usage WHERE day < $1`
	result, err := r.db.ExecContext(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old usage rows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted usage rows: %w", err)
	}

	return affected, nil
}
