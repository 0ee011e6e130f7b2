// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
)

// SessionRepository 生成会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建生成会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create 创建会话
func (r *SessionRepository) Create(ctx context.Context, session *entity.GenerationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrVersionConflict
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.GenerationSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	var session entity.GenerationSession
	if err := r.client.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Update 保存会话
func (r *SessionRepository) Update(ctx context.Context, session *entity.GenerationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Update")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Save(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// UpdateFields 部分更新会话字段
func (r *SessionRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.UpdateFields")
	defer span.End()

	fields["updated_at"] = time.Now()
	if err := r.client.db.WithContext(ctx).
		Model(&entity.GenerationSession{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update session fields: %w", err)
	}
	return nil
}

// GetMaxVersion 获取 workflow 当前最大版本号
func (r *SessionRepository) GetMaxVersion(ctx context.Context, workflowID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetMaxVersion")
	defer span.End()

	var maxVersion *int
	err := r.client.db.WithContext(ctx).
		Model(&entity.GenerationSession{}).
		Where("workflow_id = ?", workflowID).
		Select("MAX(version)").
		Scan(&maxVersion).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get max session version: %w", err)
	}

	if maxVersion == nil {
		return 0, nil
	}
	return *maxVersion, nil
}
