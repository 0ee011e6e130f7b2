package milvus

import (
	"context"

	"agentic-article-api/internal/application/retrieval"
)

// RetrievalVectorRepository 将 milvus 仓储适配为检索引擎的 VectorRepository port
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsureGuidelineCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.EnsureGuidelineCollection(ctx)
}

func (r *RetrievalVectorRepository) SearchGuidelines(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchGuidelines(ctx, &SearchParams{
		QueryVector: params.QueryVector,
		TopK:        params.TopK,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*retrieval.VectorSearchResult, 0, len(out))
	for i := range out {
		v := out[i]
		if v == nil {
			continue
		}
		results = append(results, &retrieval.VectorSearchResult{
			ID:          v.ID,
			Score:       v.Score,
			Title:       v.Title,
			Source:      v.Source,
			TextContent: v.TextContent,
		})
	}
	return results, nil
}
