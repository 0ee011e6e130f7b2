package article

import (
	"context"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
	"agentic-article-api/pkg/errors"
	"agentic-article-api/pkg/logger"
)

// Service 面向接口层的文章生成应用服务
type Service struct {
	manager   *SessionManager
	generator *Generator
	workflows repository.WorkflowRepository
}

// NewService 创建应用服务
func NewService(manager *SessionManager, generator *Generator, workflows repository.WorkflowRepository) *Service {
	return &Service{
		manager:   manager,
		generator: generator,
		workflows: workflows,
	}
}

// StartGeneration 校验 workflow、创建新版本会话并在后台启动生成循环。
// 立即返回会话，生成进度经由进度查询与事件流获取。
func (s *Service) StartGeneration(ctx context.Context, workflowID, outline, provider string) (*entity.GenerationSession, error) {
	workflow, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, errors.ErrWorkflowNotFound
	}

	session, err := s.manager.StartSession(ctx, workflowID, outline)
	if err != nil {
		return nil, err
	}

	// 请求上下文结束不应中断生成，后台运行使用独立上下文
	runCtx := logger.WithContext(context.Background(), logger.SessionIDKey, session.ID)
	runCtx = logger.WithContext(runCtx, logger.WorkflowIDKey, workflowID)
	go func() {
		if _, err := s.generator.Generate(runCtx, &GenerateInput{Session: session, Provider: provider}); err != nil {
			logger.Error(runCtx, "background article generation failed", err)
		}
	}()

	return session, nil
}

// GetSession 点查会话，不存在时返回 (nil, nil)
func (s *Service) GetSession(ctx context.Context, sessionID string) (*entity.GenerationSession, error) {
	return s.manager.GetSession(ctx, sessionID)
}

// GetProgress 获取会话进度快照，不存在时返回 (nil, nil)
func (s *Service) GetProgress(ctx context.Context, sessionID string) (*Progress, error) {
	return s.manager.GetProgress(ctx, sessionID)
}
