// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"agentic-article-api/internal/domain/entity"
)

// SectionRepository 文章章节仓储接口
type SectionRepository interface {
	// CreateBatch 批量创建章节占位行
	CreateBatch(ctx context.Context, sections []*entity.ArticleSection) error

	// GetByNumber 按 (workflow, version, section_number) 获取章节；不存在时返回 (nil, nil)
	GetByNumber(ctx context.Context, workflowID string, version, sectionNumber int) (*entity.ArticleSection, error)

	// Update 保存章节
	Update(ctx context.Context, section *entity.ArticleSection) error

	// ListByVersion 获取指定版本的全部章节，按章节号升序
	ListByVersion(ctx context.Context, workflowID string, version int) ([]*entity.ArticleSection, error)

	// ListCompleted 获取指定版本已完成的章节，按章节号升序返回；
	// limit > 0 时只返回最近完成（章节号最大）的 limit 个
	ListCompleted(ctx context.Context, workflowID string, version, limit int) ([]*entity.ArticleSection, error)
}
