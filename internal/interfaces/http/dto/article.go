package dto

import (
	"time"

	"agentic-article-api/internal/application/article"
	"agentic-article-api/internal/domain/entity"
)

// GenerateArticleRequest 发起文章生成请求
type GenerateArticleRequest struct {
	// Outline 文章大纲素材，规划阶段的唯一输入
	Outline string `json:"outline" binding:"required"`
	// Provider 指定 LLM 提供商，留空使用默认配置
	Provider string `json:"provider,omitempty"`
}

// SessionResponse 生成会话响应
type SessionResponse struct {
	ID                string                  `json:"id"`
	WorkflowID        string                  `json:"workflow_id"`
	Version           int                     `json:"version"`
	Status            string                  `json:"status"`
	TotalSections     int                     `json:"total_sections"`
	CompletedSections int                     `json:"completed_sections"`
	TargetWordCount   int                     `json:"target_word_count"`
	CurrentWordCount  int                     `json:"current_word_count"`
	Metadata          *entity.SessionMetadata `json:"metadata,omitempty"`
	ErrorMessage      string                  `json:"error_message,omitempty"`
	StartedAt         *time.Time              `json:"started_at,omitempty"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// SectionResponse 章节响应，进度查询中不返回正文全文
type SectionResponse struct {
	SectionNumber int    `json:"section_number"`
	Title         string `json:"title"`
	WordCount     int    `json:"word_count"`
	Status        string `json:"status"`
}

// ProgressResponse 进度快照响应
type ProgressResponse struct {
	Session  SessionResponse          `json:"session"`
	Sections []SectionResponse        `json:"sections"`
	Progress article.ProgressCounters `json:"progress"`
}

// ToSessionResponse 转换会话实体为响应对象
func ToSessionResponse(s *entity.GenerationSession) SessionResponse {
	return SessionResponse{
		ID:                s.ID,
		WorkflowID:        s.WorkflowID,
		Version:           s.Version,
		Status:            string(s.Status),
		TotalSections:     s.TotalSections,
		CompletedSections: s.CompletedSections,
		TargetWordCount:   s.TargetWordCount,
		CurrentWordCount:  s.CurrentWordCount,
		Metadata:          s.Metadata,
		ErrorMessage:      s.ErrorMessage,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		CreatedAt:         s.CreatedAt,
	}
}

// ToProgressResponse 转换进度快照为响应对象
func ToProgressResponse(p *article.Progress) ProgressResponse {
	sections := make([]SectionResponse, 0, len(p.Sections))
	for _, sec := range p.Sections {
		sections = append(sections, SectionResponse{
			SectionNumber: sec.SectionNumber,
			Title:         sec.Title,
			WordCount:     sec.WordCount,
			Status:        string(sec.Status),
		})
	}
	return ProgressResponse{
		Session:  ToSessionResponse(p.Session),
		Sections: sections,
		Progress: p.Progress,
	}
}
