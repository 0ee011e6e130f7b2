// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"agentic-article-api/internal/domain/entity"
)

// SessionRepository 生成会话仓储接口
type SessionRepository interface {
	// Create 创建会话；(workflow_id, version) 冲突时返回 ErrVersionConflict
	Create(ctx context.Context, session *entity.GenerationSession) error

	// GetByID 根据 ID 获取会话；不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.GenerationSession, error)

	// Update 保存会话全量字段
	Update(ctx context.Context, session *entity.GenerationSession) error

	// UpdateFields 部分更新会话字段并刷新 updated_at
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error

	// GetMaxVersion 获取 workflow 当前最大版本号，无会话时返回 0
	GetMaxVersion(ctx context.Context, workflowID string) (int, error)
}
