// Package retrieval 提供写作指南的语义检索引擎
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"agentic-article-api/pkg/logger"
	"agentic-article-api/pkg/metrics"
)

// ErrVectorDisabled 向量检索未配置或不可用
var ErrVectorDisabled = errors.New("vector retrieval disabled")

// VectorSearchParams 向量检索参数
type VectorSearchParams struct {
	QueryVector []float32
	TopK        int
	DocType     string
}

// VectorSearchResult 向量检索结果
type VectorSearchResult struct {
	ID          string
	Score       float32
	Title       string
	TextContent string
	Source      string
}

// VectorRepository 向量仓储 port，由 milvus 适配器实现
type VectorRepository interface {
	EnsureGuidelineCollection(ctx context.Context) error
	SearchGuidelines(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
}

// GuidelineHit 指南检索命中，提供给工具层序列化返回
type GuidelineHit struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
	Source  string  `json:"source,omitempty"`
}

// Engine 指南检索引擎：embedding + 向量召回
type Engine struct {
	embedder    embedding.Embedder
	vectors     VectorRepository
	defaultTopK int
}

// NewEngine 创建检索引擎，embedder 或 vectors 为 nil 时引擎降级为禁用
func NewEngine(embedder embedding.Embedder, vectors VectorRepository, defaultTopK int) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Engine{
		embedder:    embedder,
		vectors:     vectors,
		defaultTopK: defaultTopK,
	}
}

// Enabled 检索引擎是否可用
func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.vectors != nil
}

// SearchGuidelines 检索写作/SEO 指南片段
func (e *Engine) SearchGuidelines(ctx context.Context, query string, topK int) ([]*GuidelineHit, error) {
	if !e.Enabled() {
		return nil, ErrVectorDisabled
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}
	if topK > 20 {
		topK = 20
	}

	vectors, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding for query")
	}

	queryVector := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		queryVector[i] = float32(v)
	}

	start := time.Now()
	results, err := e.vectors.SearchGuidelines(ctx, &VectorSearchParams{
		QueryVector: queryVector,
		TopK:        topK,
	})
	metrics.MilvusSearchDuration.WithLabelValues("guideline_segments").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues("guideline_segments", "error").Inc()
		logger.Warn(ctx, "guideline vector search failed", "error", err.Error())
		return nil, err
	}
	metrics.MilvusSearchTotal.WithLabelValues("guideline_segments", "success").Inc()

	hits := make([]*GuidelineHit, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		hits = append(hits, &GuidelineHit{
			ID:      r.ID,
			Title:   r.Title,
			Snippet: r.TextContent,
			Score:   float64(r.Score),
			Source:  r.Source,
		})
	}
	return hits, nil
}
