package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

func newQuotaRouter(t *testing.T, cfg *config.AIConfig, withRedis bool, mockSetup func(sqlmock.Sqlmock)) *gin.Engine {
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

	var rdb *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
	}

	quota := NewAIQuota(rdb, repositories.NewUsageRepository(db), cfg)

	r := gin.New()
	r.POST("/orgs/:orgId/chat", func(c *gin.Context) {
		c.Set(ContextUser, &models.User{ID: "user-1"})
		c.Set(ContextOrgID, "org-1")
		c.Next()
	}, quota.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAIQuota_UnderQuotaAllowed(t *testing.T) {
	cfg := &config.AIConfig{DailyCallQuota: 100}
	r := newQuotaRouter(t, cfg, false, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT calls FROM ai_usage").
			WillReturnRows(sqlmock.NewRows([]string{"calls"}).AddRow(5))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orgs/org-1/chat", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAIQuota_ExhaustedQuotaRejected(t *testing.T) {
	cfg := &config.AIConfig{DailyCallQuota: 100}
	r := newQuotaRouter(t, cfg, false, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT calls FROM ai_usage").
			WillReturnRows(sqlmock.NewRows([]string{"calls"}).AddRow(100))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orgs/org-1/chat", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestAIQuota_ZeroQuotaDisablesCheck(t *testing.T) {
	cfg := &config.AIConfig{DailyCallQuota: 0}
	r := newQuotaRouter(t, cfg, false, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orgs/org-1/chat", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with quota disabled", w.Code)
	}
}

func TestAIQuota_RedisRateLimit(t *testing.T) {
	cfg := &config.AIConfig{RequestsPerSecond: 1, Burst: 1}
	r := newQuotaRouter(t, cfg, true, nil)

	// First request consumes the burst.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orgs/org-1/chat", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}

	// Immediate second request is throttled.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orgs/org-1/chat", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", w.Code)
	}
}
