// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// SessionStatus 生成会话状态
type SessionStatus string

const (
	SessionStatusPlanning  SessionStatus = "planning"
	SessionStatusWriting   SessionStatus = "writing"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// IsTerminal 判断会话是否处于终止状态
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// PlannedSection 规划阶段产出的章节计划，随会话元数据持久化
type PlannedSection struct {
	Title               string `json:"title"`
	Order               int    `json:"order"`
	EstWords            int    `json:"est_words"`
	ContentRequirements string `json:"content_requirements"`
}

// WordRange 目标字数区间
type WordRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// SessionMetadata 会话元数据，规划与写作过程中渐进更新
type SessionMetadata struct {
	Headline          string           `json:"headline,omitempty"`
	TargetWordRange   *WordRange       `json:"target_word_range,omitempty"`
	PlannedSections   []PlannedSection `json:"planned_sections,omitempty"`
	WritingStyleNotes string           `json:"writing_style_notes,omitempty"`
}

// GenerationSession 文章生成会话实体
// 同一 workflow 的每次生成都会创建新的 version，历史数据永不覆盖
type GenerationSession struct {
	ID                string           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkflowID        string           `json:"workflow_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_sessions_workflow_version,priority:1"`
	Version           int              `json:"version" gorm:"not null;default:1;uniqueIndex:idx_sessions_workflow_version,priority:2"`
	Status            SessionStatus    `json:"status" gorm:"type:varchar(32);not null;default:'planning'"`
	Outline           string           `json:"outline,omitempty" gorm:"type:text"`
	TotalSections     int              `json:"total_sections" gorm:"default:0"`
	CompletedSections int              `json:"completed_sections" gorm:"default:0"`
	TargetWordCount   int              `json:"target_word_count" gorm:"default:0"`
	CurrentWordCount  int              `json:"current_word_count" gorm:"default:0"`
	StyleRules        pq.StringArray   `json:"style_rules,omitempty" gorm:"type:text[]"`
	Metadata          *SessionMetadata `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	ErrorMessage      string           `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (GenerationSession) TableName() string {
	return "generation_sessions"
}

// NewGenerationSession 创建新的生成会话
func NewGenerationSession(workflowID string, version int, outline string, styleRules []string) *GenerationSession {
	now := time.Now()
	return &GenerationSession{
		WorkflowID: workflowID,
		Version:    version,
		Status:     SessionStatusPlanning,
		Outline:    outline,
		StyleRules: styleRules,
		Metadata:   &SessionMetadata{},
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NextPlannedSection 返回已完成章节之后的下一个计划章节
// 全部写完或尚未规划时返回 nil
func (s *GenerationSession) NextPlannedSection() *PlannedSection {
	if s.Metadata == nil {
		return nil
	}
	idx := s.CompletedSections
	if idx < 0 || idx >= len(s.Metadata.PlannedSections) {
		return nil
	}
	return &s.Metadata.PlannedSections[idx]
}
