package middleware

import (
	"net/http"
	"sync"

	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limitKey prefers the authenticated user so callers behind one NAT do not
// share a bucket; anonymous requests fall back to the client IP.
func limitKey(c *gin.Context) string {
	if p, ok := PrincipalFrom(c); ok && p.ID != "" {
		return "sub:" + p.ID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func reject(c *gin.Context, limiter, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	metrics.RateLimitRejected.WithLabelValues(limiter).Inc()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
}

// RateLimitMiddleware returns a Gin middleware enforcing an in-process
// token bucket per key. rps = allowed events per second, burst = maximum
// tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	var limiters sync.Map // key -> *rate.Limiter
	get := func(key string) *rate.Limiter {
		if v, ok := limiters.Load(key); ok {
			return v.(*rate.Limiter)
		}
		v, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
		return v.(*rate.Limiter)
	}
	return func(c *gin.Context) {
		if !get(limitKey(c)).Allow() {
			reject(c, "memory", "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
