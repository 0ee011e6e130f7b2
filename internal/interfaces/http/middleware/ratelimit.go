package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agentic-article-api/internal/config"
	"agentic-article-api/internal/infrastructure/persistence/redis"
)

// RateLimit 生成接口限流中间件，按客户端 IP + 路径做滑动窗口计数。
// 限流器故障时放行，避免 Redis 抖动影响业务。
func RateLimit(cfg config.RateLimitConfig, limiter *redis.RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = 60
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP() + ":" + c.Request.URL.Path

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Minute)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     429,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
