package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func hit(r *gin.Engine, path, ip string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ip != "" {
		req.RemoteAddr = ip + ":1234"
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/ok", ""))
	require.Equal(t, http.StatusOK, hit(r, "/ok", ""))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/limited", ""))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/limited", ""))
	// other clients keep their own bucket
	require.Equal(t, http.StatusOK, hit(r, "/limited", "10.0.0.9"))

	time.Sleep(2100 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r, "/limited", ""))
}

func TestRateLimitMiddleware_UsesPrincipalWhenPresent(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(PrincipalKey, models.Principal{ID: "user-123"})
		c.Next()
	})
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u", "10.0.0.1"))
	// same user from another address shares the bucket
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u", "10.0.0.2"))
}

func TestRateLimitMiddleware_AfterAuthKeysByUser(t *testing.T) {
	r := gin.New()
	g := r.Group("/api", AuthMiddleware(&fakeVerifier{}), RateLimitMiddleware(0.5, 1))
	g.GET("/u", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(token, ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/u", nil)
		req.RemoteAddr = ip + ":1234"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// rejected by auth before the limiter sees them
	require.Equal(t, http.StatusUnauthorized, call("", "10.0.0.1"))
	require.Equal(t, http.StatusUnauthorized, call("", "10.0.0.1"))

	require.Equal(t, http.StatusOK, call("goodtoken", "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, call("goodtoken", "10.0.0.2"))
}
