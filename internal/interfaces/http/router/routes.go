package router

import (
	"github.com/gin-gonic/gin"

	"agentic-article-api/internal/config"
	"agentic-article-api/internal/infrastructure/persistence/redis"
	"agentic-article-api/internal/interfaces/http/handler"
	"agentic-article-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	cfg *config.Config,
	articleHandler *handler.ArticleHandler,
	streamHandler *handler.StreamHandler,
	rateLimiter *redis.RateLimiter,
) {
	// 生成入口单独限流，查询接口不限
	generateLimit := middleware.RateLimit(cfg.Security.RateLimit, rateLimiter)

	workflows := v1.Group("/workflows")
	{
		workflows.POST("/:wid/articles/generate", generateLimit, articleHandler.Generate)
	}

	sessions := v1.Group("/articles/sessions")
	{
		sessions.GET("/:sid", articleHandler.GetSession)
		sessions.GET("/:sid/progress", articleHandler.GetProgress)
		sessions.GET("/:sid/events", streamHandler.StreamEvents) // SSE
	}
}
