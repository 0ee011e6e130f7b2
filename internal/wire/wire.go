//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/wire"

	"agentic-article-api/internal/application/article"
	"agentic-article-api/internal/application/retrieval"
	"agentic-article-api/internal/config"
	"agentic-article-api/internal/domain/repository"
	infraembedding "agentic-article-api/internal/infrastructure/embedding"
	"agentic-article-api/internal/infrastructure/llm"
	"agentic-article-api/internal/infrastructure/messaging"
	"agentic-article-api/internal/infrastructure/persistence/milvus"
	"agentic-article-api/internal/infrastructure/persistence/postgres"
	"agentic-article-api/internal/infrastructure/persistence/redis"
	"agentic-article-api/internal/infrastructure/websearch"
	"agentic-article-api/internal/interfaces/http/handler"
	"agentic-article-api/internal/interfaces/http/router"
	"agentic-article-api/internal/workflow/port"
	workflowprompt "agentic-article-api/internal/workflow/prompt"
	"agentic-article-api/pkg/logger"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		GenerationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// RepoSet PostgreSQL 仓储提供者集合
var RepoSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewSessionRepository,
	postgres.NewSectionRepository,
	postgres.NewWorkflowRepository,
	wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
	wire.Bind(new(repository.SectionRepository), new(*postgres.SectionRepository)),
	wire.Bind(new(repository.WorkflowRepository), new(*postgres.WorkflowRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// VectorSet 可选向量检索（Milvus/Embedder 不可达时降级而非阻塞启动）
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideVectorRepositoryOptional,
	ProvideEmbedderOptional,
	ProvideRetrievalEngine,
)

// GenerationSet 文章生成编排提供者集合
var GenerationSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(port.ChatModelFactory), new(*llm.EinoFactory)),
	workflowprompt.NewRegistry,
	ProvideSearchClient,
	article.NewBroadcaster,
	article.NewAssembler,
	ProvideSessionManager,
	article.NewGenerator,
	article.NewService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewHealthHandler,
	handler.NewArticleHandler,
	handler.NewStreamHandler,
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供会话事件生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(
		redisClient.Redis(),
		cfg.Messaging.RedisStream.Stream,
		int64(cfg.Messaging.RedisStream.MaxLen),
	)
}

// ProvideMilvusClientOptional 提供可选的 Milvus 客户端
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, guideline search disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorRepositoryOptional 提供可选的向量仓储
func ProvideVectorRepositoryOptional(client *milvus.Client) retrieval.VectorRepository {
	if client == nil {
		return nil
	}
	return milvus.NewRetrievalVectorRepository(milvus.NewRepository(client))
}

// ProvideEmbedderOptional 提供可选的 Embedder
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, guideline search disabled", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideRetrievalEngine 提供写作规范检索引擎
func ProvideRetrievalEngine(embedder einoembedding.Embedder, vectors retrieval.VectorRepository, cfg *config.Config) *retrieval.Engine {
	return retrieval.NewEngine(embedder, vectors, cfg.Vector.Milvus.TopK)
}

// ProvideSearchClient 提供外部搜索客户端
func ProvideSearchClient(cfg *config.Config) *websearch.Client {
	return websearch.NewClient(&cfg.Search)
}

// ProvideSessionManager 提供会话管理器
func ProvideSessionManager(
	sessions repository.SessionRepository,
	sections repository.SectionRepository,
	cache *redis.Cache,
	cfg *config.Config,
) *article.SessionManager {
	return article.NewSessionManager(sessions, sections, cache, cfg.Generation.ProgressCacheTTL)
}
