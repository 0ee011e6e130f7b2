// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// SectionStatus 章节状态
type SectionStatus string

const (
	SectionStatusPending   SectionStatus = "pending"
	SectionStatusCompleted SectionStatus = "completed"
)

// SectionMetadata 章节生成元数据，规划时从计划带入
type SectionMetadata struct {
	TargetWords         int    `json:"target_words,omitempty"`
	ContentRequirements string `json:"content_requirements,omitempty"`
}

// ArticleSection 文章章节实体
// 以 (workflow_id, version, section_number) 唯一标识，历史版本的章节永不覆盖
type ArticleSection struct {
	ID            string           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkflowID    string           `json:"workflow_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_sections_identity,priority:1"`
	Version       int              `json:"version" gorm:"not null;uniqueIndex:idx_sections_identity,priority:2"`
	SectionNumber int              `json:"section_number" gorm:"not null;uniqueIndex:idx_sections_identity,priority:3"`
	Title         string           `json:"title" gorm:"type:varchar(255)"`
	Content       string           `json:"content,omitempty" gorm:"type:text"`
	WordCount     int              `json:"word_count" gorm:"default:0"`
	Status        SectionStatus    `json:"status" gorm:"type:varchar(32);not null;default:'pending'"`
	Metadata      *SectionMetadata `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt     time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ArticleSection) TableName() string {
	return "article_sections"
}

// NewPendingSection 按计划创建待写章节占位行
func NewPendingSection(workflowID string, version int, plan PlannedSection) *ArticleSection {
	now := time.Now()
	return &ArticleSection{
		WorkflowID:    workflowID,
		Version:       version,
		SectionNumber: plan.Order,
		Title:         plan.Title,
		Status:        SectionStatusPending,
		Metadata: &SectionMetadata{
			TargetWords:         plan.EstWords,
			ContentRequirements: plan.ContentRequirements,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Complete 写入章节内容并标记完成
func (s *ArticleSection) Complete(title, content string) {
	if strings.TrimSpace(title) != "" {
		s.Title = title
	}
	s.Content = content
	s.WordCount = CountWords(content)
	s.Status = SectionStatusCompleted
	s.UpdatedAt = time.Now()
}

// CountWords 按空白分词统计字数
func CountWords(text string) int {
	return len(strings.Fields(text))
}
