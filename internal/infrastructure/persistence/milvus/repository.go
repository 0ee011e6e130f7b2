// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	QueryVector []float32
	TopK        int
}

// SearchResult 检索结果
type SearchResult struct {
	ID          string
	Score       float32
	Title       string
	Source      string
	TextContent string
}

// EnsureGuidelineCollection 确保指南集合存在（含索引并已加载）
func (r *Repository) EnsureGuidelineCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureGuidelineCollection")
	defer span.End()

	has, err := r.client.milvus.HasCollection(ctx, CollectionGuidelineSegments)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		if err := r.client.milvus.CreateCollection(ctx, GuidelineSegmentsSchema(), entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := r.client.milvus.CreateIndex(ctx, CollectionGuidelineSegments, "vector", idx, false); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := r.client.milvus.LoadCollection(ctx, CollectionGuidelineSegments, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// SearchGuidelines 检索指南片段
func (r *Repository) SearchGuidelines(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchGuidelines",
		trace.WithAttributes(attribute.Int("top_k", params.TopK)))
	defer span.End()

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		CollectionGuidelineSegments,
		nil,
		"",
		[]string{"id", "title", "source", "text_content"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID, _ = idCol.ValueByIdx(i)
			}
			if titleCol, ok := result.Fields.GetColumn("title").(*entity.ColumnVarChar); ok {
				sr.Title, _ = titleCol.ValueByIdx(i)
			}
			if sourceCol, ok := result.Fields.GetColumn("source").(*entity.ColumnVarChar); ok {
				sr.Source, _ = sourceCol.ValueByIdx(i)
			}
			if textCol, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				sr.TextContent, _ = textCol.ValueByIdx(i)
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// GuidelineSegment 指南片段写入结构
type GuidelineSegment struct {
	ID          string
	Title       string
	Source      string
	TextContent string
	Vector      []float32
}

// InsertSegments 批量写入指南片段
func (r *Repository) InsertSegments(ctx context.Context, segments []*GuidelineSegment) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(segments) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertSegments",
		trace.WithAttributes(attribute.Int("segment_count", len(segments))))
	defer span.End()

	ids := make([]string, 0, len(segments))
	titles := make([]string, 0, len(segments))
	sources := make([]string, 0, len(segments))
	texts := make([]string, 0, len(segments))
	vectors := make([][]float32, 0, len(segments))
	for _, s := range segments {
		if s == nil {
			continue
		}
		ids = append(ids, s.ID)
		titles = append(titles, s.Title)
		sources = append(sources, s.Source)
		texts = append(texts, s.TextContent)
		vectors = append(vectors, s.Vector)
	}

	_, err := r.client.milvus.Insert(ctx, CollectionGuidelineSegments, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", VectorDimension, vectors),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("text_content", texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert segments: %w", err)
	}
	return nil
}
