// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"agentic-article-api/internal/domain/entity"
)

// SectionRepository 文章章节仓储实现
type SectionRepository struct {
	client *Client
}

// NewSectionRepository 创建文章章节仓储
func NewSectionRepository(client *Client) *SectionRepository {
	return &SectionRepository{client: client}
}

// CreateBatch 批量创建章节占位行
func (r *SectionRepository) CreateBatch(ctx context.Context, sections []*entity.ArticleSection) error {
	ctx, span := tracer.Start(ctx, "postgres.SectionRepository.CreateBatch")
	defer span.End()

	if len(sections) == 0 {
		return nil
	}
	if err := r.client.db.WithContext(ctx).Create(sections).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create sections: %w", err)
	}
	return nil
}

// GetByNumber 按 (workflow, version, section_number) 获取章节
func (r *SectionRepository) GetByNumber(ctx context.Context, workflowID string, version, sectionNumber int) (*entity.ArticleSection, error) {
	ctx, span := tracer.Start(ctx, "postgres.SectionRepository.GetByNumber")
	defer span.End()

	var section entity.ArticleSection
	err := r.client.db.WithContext(ctx).
		Where("workflow_id = ? AND version = ? AND section_number = ?", workflowID, version, sectionNumber).
		First(&section).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return &section, nil
}

// Update 保存章节
func (r *SectionRepository) Update(ctx context.Context, section *entity.ArticleSection) error {
	ctx, span := tracer.Start(ctx, "postgres.SectionRepository.Update")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Save(section).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update section: %w", err)
	}
	return nil
}

// ListByVersion 获取指定版本的全部章节
func (r *SectionRepository) ListByVersion(ctx context.Context, workflowID string, version int) ([]*entity.ArticleSection, error) {
	ctx, span := tracer.Start(ctx, "postgres.SectionRepository.ListByVersion")
	defer span.End()

	var sections []*entity.ArticleSection
	err := r.client.db.WithContext(ctx).
		Where("workflow_id = ? AND version = ?", workflowID, version).
		Order("section_number ASC").
		Find(&sections).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return sections, nil
}

// ListCompleted 获取指定版本已完成的章节
func (r *SectionRepository) ListCompleted(ctx context.Context, workflowID string, version, limit int) ([]*entity.ArticleSection, error) {
	ctx, span := tracer.Start(ctx, "postgres.SectionRepository.ListCompleted")
	defer span.End()

	query := r.client.db.WithContext(ctx).
		Where("workflow_id = ? AND version = ? AND status = ?", workflowID, version, entity.SectionStatusCompleted)

	var sections []*entity.ArticleSection
	if limit > 0 {
		// 取最近完成的 limit 个，再转回章节号升序
		query = query.Order("section_number DESC").Limit(limit)
	} else {
		query = query.Order("section_number ASC")
	}
	if err := query.Find(&sections).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list completed sections: %w", err)
	}

	sort.Slice(sections, func(i, j int) bool {
		return sections[i].SectionNumber < sections[j].SectionNumber
	})
	return sections, nil
}
