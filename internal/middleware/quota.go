// quota.go provides AI call quota middleware. Two layers guard the model
// endpoints: a Redis sliding-window limiter per user (fast path, smooths
// bursts) and the authoritative per-organization daily counter in Postgres.
// Redis being down must never block chat, so limiter errors fail open.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

// AIQuota enforces per-user request rates and per-organization daily call
// quotas for AI endpoints.
type AIQuota struct {
	limiter   *redis_rate.Limiter
	usageRepo *repositories.UsageRepository
	cfg       *config.AIConfig
}

// NewAIQuota builds the quota guard. rdb may be nil, in which case only the
// daily quota is enforced.
func NewAIQuota(rdb *redis.Client, usageRepo *repositories.UsageRepository, cfg *config.AIConfig) *AIQuota {
	q := &AIQuota{usageRepo: usageRepo, cfg: cfg}
	if rdb != nil {
		q.limiter = redis_rate.NewLimiter(rdb)
	}
	return q
}

// Middleware returns the gin handler. It must run after AuthMiddleware and
// RequireOrgRole so user and organization identity are in the context.
func (q *AIQuota) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		orgID := CurrentOrgID(c)
		if user == nil || orgID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		// Fast path: per-user rate limit in Redis.
		if q.limiter != nil && q.cfg.RequestsPerSecond > 0 {
			limit := redis_rate.Limit{
				Rate:   q.cfg.RequestsPerSecond,
				Burst:  q.cfg.Burst,
				Period: time.Second,
			}
			res, err := q.limiter.Allow(c.Request.Context(), "ai:user:"+user.ID, limit)
			if err == nil && res.Allowed == 0 {
				c.Header("Retry-After", res.RetryAfter.Round(time.Second).String())
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": "Too many AI requests, slow down",
				})
				return
			}
			// err != nil falls through: the DB quota below still holds.
		}

		// Authoritative path: per-organization daily quota in Postgres.
		if q.cfg.DailyCallQuota > 0 {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			calls, err := q.usageRepo.Get(c.Request.Context(), orgID, today)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check AI quota",
				})
				return
			}
			if calls >= q.cfg.DailyCallQuota {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": "Daily AI call quota exhausted for this organization",
				})
				return
			}
		}

		c.Next()
	}
}
