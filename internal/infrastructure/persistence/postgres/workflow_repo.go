// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"agentic-article-api/internal/domain/entity"
)

// WorkflowRepository workflow 文档仓储实现
type WorkflowRepository struct {
	client *Client
}

// NewWorkflowRepository 创建 workflow 仓储
func NewWorkflowRepository(client *Client) *WorkflowRepository {
	return &WorkflowRepository{client: client}
}

// GetByID 根据 ID 获取 workflow
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	ctx, span := tracer.Start(ctx, "postgres.WorkflowRepository.GetByID")
	defer span.End()

	var workflow entity.Workflow
	if err := r.client.db.WithContext(ctx).First(&workflow, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return &workflow, nil
}

// UpdateStepOutputs 覆写指定步骤键下的 outputs
// 只替换本服务的步骤，其余步骤原样保留
func (r *WorkflowRepository) UpdateStepOutputs(ctx context.Context, workflowID, stepKey string, outputs map[string]any) error {
	ctx, span := tracer.Start(ctx, "postgres.WorkflowRepository.UpdateStepOutputs")
	defer span.End()

	return r.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workflow entity.Workflow
		if err := tx.First(&workflow, "id = ?", workflowID).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to load workflow for step update: %w", err)
		}

		if workflow.Steps == nil {
			workflow.Steps = make(map[string]entity.WorkflowStep)
		}
		step := workflow.Steps[stepKey]
		step.Outputs = outputs
		workflow.Steps[stepKey] = step

		if err := tx.Model(&entity.Workflow{}).
			Where("id = ?", workflowID).
			Update("steps", workflow.Steps).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to update workflow step outputs: %w", err)
		}
		return nil
	})
}
