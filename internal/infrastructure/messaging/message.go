// Package messaging 提供消息队列实现
package messaging

import (
	"encoding/json"
	"time"
)

// Message 消息结构
type Message struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	WorkflowID string            `json:"workflow_id"`
	SessionID  string            `json:"session_id"`
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, workflowID, sessionID string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:         id,
		Type:       msgType,
		WorkflowID: workflowID,
		SessionID:  sessionID,
		Payload:    payloadBytes,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

// StreamSessionEvents 生成会话生命周期事件流
const StreamSessionEvents Stream = "article:session:events"

// 会话生命周期事件类型
const (
	EventSessionStarted   = "session_started"
	EventSectionCompleted = "section_completed"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
)

// SessionEventMessage 会话生命周期事件载荷
type SessionEventMessage struct {
	SessionID      string `json:"session_id"`
	WorkflowID     string `json:"workflow_id"`
	Version        int    `json:"version"`
	Status         string `json:"status"`
	SectionNumber  int    `json:"section_number,omitempty"`
	SectionTitle   string `json:"section_title,omitempty"`
	TotalWordCount int    `json:"total_word_count,omitempty"`
	Error          string `json:"error,omitempty"`
}
