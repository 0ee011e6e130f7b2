// Package article 实现文章生成会话编排
package article

import (
	"sync"
	"time"

	"agentic-article-api/pkg/metrics"
)

// 进度事件类型
const (
	EventStatus     = "status"
	EventPlan       = "plan"
	EventText       = "text"
	EventToolCall   = "tool_call"
	EventToolOutput = "tool_output"
	EventSection    = "section"
	EventCompleted  = "completed"
	EventError      = "error"
)

// ProgressEvent 推送给订阅方的结构化进度事件
type ProgressEvent struct {
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Broadcaster 按会话 ID 维护单订阅通道并向其推送进度事件。
// 每个会话同一时刻至多一个订阅者，新的 Attach 静默替换旧通道。
type Broadcaster struct {
	mu       sync.RWMutex
	channels map[string]chan ProgressEvent
}

// NewBroadcaster 创建进度广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		channels: make(map[string]chan ProgressEvent),
	}
}

// Attach 为会话注册订阅通道并返回，替换掉已存在的旧通道
func (b *Broadcaster) Attach(sessionID string) <-chan ProgressEvent {
	ch := make(chan ProgressEvent, 64)

	b.mu.Lock()
	if old, ok := b.channels[sessionID]; ok {
		close(old)
	}
	b.channels[sessionID] = ch
	b.mu.Unlock()

	return ch
}

// Detach 注销会话的订阅通道
func (b *Broadcaster) Detach(sessionID string) {
	b.mu.Lock()
	if ch, ok := b.channels[sessionID]; ok {
		close(ch)
		delete(b.channels, sessionID)
	}
	b.mu.Unlock()
}

// Release 注销会话订阅，但仅当传入通道仍是当前注册通道时生效。
// 订阅方断开时使用，避免误关 Attach 替换后的新订阅者。
func (b *Broadcaster) Release(sessionID string, ch <-chan ProgressEvent) {
	b.mu.Lock()
	if cur, ok := b.channels[sessionID]; ok && (<-chan ProgressEvent)(cur) == ch {
		close(cur)
		delete(b.channels, sessionID)
	}
	b.mu.Unlock()
}

// Push 向会话订阅者推送事件。无订阅者时静默忽略；
// 通道已满（订阅方不再消费）时将其驱逐，后续推送退化为 no-op。
func (b *Broadcaster) Push(sessionID string, event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// 发送期间持有读锁，保证不会与 Attach/Detach 的 close 并发
	b.mu.RLock()
	ch, ok := b.channels[sessionID]
	if !ok {
		b.mu.RUnlock()
		return
	}

	delivered := false
	select {
	case ch <- event:
		delivered = true
	default:
	}
	b.mu.RUnlock()

	if delivered {
		metrics.BroadcastEventsTotal.WithLabelValues(event.Kind, "delivered").Inc()
		return
	}
	metrics.BroadcastEventsTotal.WithLabelValues(event.Kind, "dropped").Inc()
	b.evict(sessionID, ch)
}

// evict 只驱逐仍然注册的同一条通道，避免误伤 Attach 替换后的新通道
func (b *Broadcaster) evict(sessionID string, ch chan ProgressEvent) {
	b.mu.Lock()
	if cur, ok := b.channels[sessionID]; ok && cur == ch {
		close(cur)
		delete(b.channels, sessionID)
	}
	b.mu.Unlock()
}
