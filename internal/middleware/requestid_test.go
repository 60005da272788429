package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("generates ID when absent", func(t *testing.T) {
		r := gin.New()
		r.Use(RequestIDMiddleware())
		var seen string
		r.GET("/", func(c *gin.Context) {
			seen = c.GetString(RequestIDKey)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Error("request ID not set in context")
		}
		if w.Header().Get(RequestIDHeader) != seen {
			t.Errorf("response header %q != context value %q", w.Header().Get(RequestIDHeader), seen)
		}
	})

	t.Run("preserves inbound ID", func(t *testing.T) {
		r := gin.New()
		r.Use(RequestIDMiddleware())
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-id-42")
		r.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "upstream-id-42" {
			t.Errorf("response header = %q, want upstream-id-42", got)
		}
	})
}
