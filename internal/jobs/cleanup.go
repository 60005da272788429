package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/safego"
)

const (
	cleanupInterval = time.Hour

	// usageRetentionDays is how long per-day AI usage counters are kept.
	usageRetentionDays = 90

	// auditRetention is the Postgres interval after which audit log rows are
	// purged.
	auditRetention = "90 days"
)

// Cleanup is the background worker that purges expired invitations, aged AI
// usage counters, and old audit log entries.
type Cleanup struct {
	invitations *repositories.InvitationRepository
	usage       *repositories.UsageRepository
	audit       *repositories.AuditRepository
}

// NewCleanup creates the cleanup worker.
func NewCleanup(
	invitations *repositories.InvitationRepository,
	usage *repositories.UsageRepository,
	audit *repositories.AuditRepository,
) *Cleanup {
	return &Cleanup{invitations: invitations, usage: usage, audit: audit}
}

// Start launches the cleanup loop. The first pass runs after one full
// interval so startup is not slowed by maintenance work.
func (c *Cleanup) Start(ctx context.Context) {
	safego.Go(func() {
		slog.Info("starting cleanup worker", "interval", cleanupInterval)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("cleanup worker stopped")
				return
			case <-ticker.C:
				c.runOnce(ctx)
			}
		}
	})
}

func (c *Cleanup) runOnce(ctx context.Context) {
	if n, err := c.invitations.DeleteExpired(ctx); err != nil {
		slog.Error("failed to delete expired invitations", "error", err)
	} else if n > 0 {
		slog.Info("deleted expired invitations", "count", n)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -usageRetentionDays)
	if n, err := c.usage.DeleteOlderThan(ctx, cutoff); err != nil {
		slog.Error("failed to delete old usage counters", "error", err)
	} else if n > 0 {
		slog.Info("deleted old usage counters", "count", n, "cutoff", cutoff.Format("2006-01-02"))
	}

	if n, err := c.audit.DeleteOlderThan(ctx, auditRetention); err != nil {
		slog.Error("failed to delete old audit entries", "error", err)
	} else if n > 0 {
		slog.Info("deleted old audit entries", "count", n)
	}
}
