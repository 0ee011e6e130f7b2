// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"errors"

	"agentic-article-api/internal/domain/entity"
)

// ErrVersionConflict (workflow_id, version) 唯一约束冲突
var ErrVersionConflict = errors.New("session version conflict")

// WorkflowRepository workflow 文档仓储接口
type WorkflowRepository interface {
	// GetByID 根据 ID 获取 workflow；不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)

	// UpdateStepOutputs 覆写指定步骤键下的 outputs，不触碰其余步骤
	UpdateStepOutputs(ctx context.Context, workflowID, stepKey string, outputs map[string]any) error
}
