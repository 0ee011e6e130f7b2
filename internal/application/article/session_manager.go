package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
	"agentic-article-api/internal/infrastructure/persistence/redis"
	"agentic-article-api/pkg/logger"
)

// DefaultStyleRules 会话创建时写入的静态写作风格规则
var DefaultStyleRules = []string{
	"conversational prose, as if explaining to a smart colleague",
	"short paragraphs, two to four sentences each",
	"no em-dashes",
	"avoid walls of text",
}

// ProgressCounters 聚合进度计数
type ProgressCounters struct {
	Total            int `json:"total"`
	Completed        int `json:"completed"`
	CurrentWordCount int `json:"current_word_count"`
	TargetWordCount  int `json:"target_word_count"`
}

// Progress 会话进度快照：会话 + 本版本全部章节 + 聚合计数
type Progress struct {
	Session  *entity.GenerationSession `json:"session"`
	Sections []*entity.ArticleSection  `json:"sections"`
	Progress ProgressCounters          `json:"progress"`
}

// SessionManager 负责会话生命周期与进度查询
type SessionManager struct {
	sessions    repository.SessionRepository
	sections    repository.SectionRepository
	cache       *redis.Cache
	progressTTL time.Duration
}

// NewSessionManager 创建会话管理器，cache 为 nil 时进度查询直连数据库
func NewSessionManager(sessions repository.SessionRepository, sections repository.SectionRepository, cache *redis.Cache, progressTTL time.Duration) *SessionManager {
	if progressTTL <= 0 {
		progressTTL = 2 * time.Second
	}
	return &SessionManager{
		sessions:    sessions,
		sections:    sections,
		cache:       cache,
		progressTTL: progressTTL,
	}
}

// StartSession 为 workflow 创建新版本的生成会话。
// 版本号取当前最大值加一；并发触发撞上唯一约束时重读版本号重试一次。
func (m *SessionManager) StartSession(ctx context.Context, workflowID, outline string) (*entity.GenerationSession, error) {
	for attempt := 0; attempt < 2; attempt++ {
		maxVersion, err := m.sessions.GetMaxVersion(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve next version: %w", err)
		}

		session := entity.NewGenerationSession(workflowID, maxVersion+1, outline, DefaultStyleRules)
		err = m.sessions.Create(ctx, session)
		if err == nil {
			logger.Info(ctx, "generation session started",
				"session_id", session.ID,
				"workflow_id", workflowID,
				"version", session.Version,
			)
			return session, nil
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			logger.Warn(ctx, "session version conflict, retrying",
				"workflow_id", workflowID,
				"version", session.Version,
			)
			continue
		}
		return nil, err
	}
	return nil, repository.ErrVersionConflict
}

// GetSession 点查会话，不存在时返回 (nil, nil)
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*entity.GenerationSession, error) {
	return m.sessions.GetByID(ctx, sessionID)
}

// UpdateSession 合并更新会话字段
func (m *SessionManager) UpdateSession(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	if err := m.sessions.UpdateFields(ctx, sessionID, fields); err != nil {
		return err
	}
	m.invalidateProgress(ctx, sessionID)
	return nil
}

// GetProgress 获取会话进度快照，不存在时返回 (nil, nil)。
// 写作期间会被外部轮询高频调用，经由短 TTL 缓存削峰。
func (m *SessionManager) GetProgress(ctx context.Context, sessionID string) (*Progress, error) {
	if m.cache == nil {
		return m.loadProgress(ctx, sessionID)
	}

	raw, err := m.cache.GetOrLoad(ctx, progressCacheKey(sessionID), m.progressTTL, func() (interface{}, error) {
		p, err := m.loadProgress(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errSessionAbsent
		}
		return p, nil
	})
	if err != nil {
		if errors.Is(err, errSessionAbsent) {
			return nil, nil
		}
		// 缓存故障时降级为直连查询
		logger.Warn(ctx, "progress cache unavailable, falling back to direct load",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return m.loadProgress(ctx, sessionID)
	}

	var progress Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode cached progress: %w", err)
	}
	return &progress, nil
}

var errSessionAbsent = errors.New("session absent")

func (m *SessionManager) loadProgress(ctx context.Context, sessionID string) (*Progress, error) {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	sections, err := m.sections.ListByVersion(ctx, session.WorkflowID, session.Version)
	if err != nil {
		return nil, err
	}

	return &Progress{
		Session:  session,
		Sections: sections,
		Progress: ProgressCounters{
			Total:            session.TotalSections,
			Completed:        session.CompletedSections,
			CurrentWordCount: session.CurrentWordCount,
			TargetWordCount:  session.TargetWordCount,
		},
	}, nil
}

func (m *SessionManager) invalidateProgress(ctx context.Context, sessionID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Del(ctx, progressCacheKey(sessionID)); err != nil {
		logger.Warn(ctx, "failed to invalidate progress cache",
			"session_id", sessionID,
			"error", err.Error(),
		)
	}
}

func progressCacheKey(sessionID string) string {
	return "article:progress:" + sessionID
}
