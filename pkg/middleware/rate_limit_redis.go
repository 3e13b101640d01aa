package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimitMiddleware provides a fixed-window limiter shared by every
// service instance. Each window allows floor(rps*window)+burst requests.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowed := int64(rps*float64(windowSeconds)) + int64(burst)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		bucket := time.Now().Unix() / windowSeconds
		key := fmt.Sprintf("rl:%s:%d", limitKey(c), bucket)

		pipe := client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Duration(windowSeconds+1)*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Errorf("rate limit: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit check failed"})
			return
		}
		if incr.Val() > allowed {
			reject(c, "redis", strconv.FormatInt(windowSeconds, 10))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
