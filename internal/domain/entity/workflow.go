// Package entity 定义领域实体
package entity

import (
	"time"
)

// StepArticleDraft 文章草稿在 workflow steps 中的固定键
const StepArticleDraft = "article_draft"

// DraftStatusCompleted 草稿完成标记
const DraftStatusCompleted = "completed"

// ArticleDraftOutputs 文章草稿步骤的输出结构
type ArticleDraftOutputs struct {
	FullArticle    string    `json:"full_article"`
	WordCount      int       `json:"word_count"`
	SectionCount   int       `json:"section_count"`
	DraftStatus    string    `json:"draft_status"`
	AgentGenerated bool      `json:"agent_generated"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// WorkflowStep workflow 中的单个步骤
type WorkflowStep struct {
	Outputs map[string]any `json:"outputs,omitempty"`
}

// Workflow 外部 workflow 文档
// 本服务只读写自己步骤键下的 outputs，不触碰其余内容
type Workflow struct {
	ID        string                  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string                  `json:"name,omitempty" gorm:"type:varchar(255)"`
	Steps     map[string]WorkflowStep `json:"steps,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time               `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time               `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Workflow) TableName() string {
	return "workflows"
}
