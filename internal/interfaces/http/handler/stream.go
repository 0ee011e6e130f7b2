package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"agentic-article-api/internal/application/article"
	"agentic-article-api/internal/interfaces/http/dto"
	"agentic-article-api/pkg/logger"
)

// StreamHandler 生成进度 SSE 处理器
type StreamHandler struct {
	svc         *article.Service
	broadcaster *article.Broadcaster
}

// NewStreamHandler 创建 SSE 处理器
func NewStreamHandler(svc *article.Service, broadcaster *article.Broadcaster) *StreamHandler {
	return &StreamHandler{
		svc:         svc,
		broadcaster: broadcaster,
	}
}

// StreamEvents 订阅会话生成事件流
// @Summary 订阅会话生成事件流
// @Description 通过 SSE 推送规划、文本增量、章节完成与终态事件。
// @Description 每个会话同一时刻只保留一个订阅者，新连接会顶掉旧连接。
// @Tags Articles
// @Produce text/event-stream
// @Param sid path string true "Session ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/articles/sessions/{sid}/events [get]
func (h *StreamHandler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sid")

	session, err := h.svc.GetSession(ctx, sessionID)
	if err != nil {
		logger.Error(ctx, "failed to get generation session", err, "session_id", sessionID)
		dto.InternalError(c, "failed to get generation session")
		return
	}
	if session == nil {
		dto.NotFound(c, "generation session not found")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 先推当前状态快照，订阅晚于部分事件时客户端仍能对齐状态
	c.SSEvent(article.EventStatus, gin.H{
		"status":             string(session.Status),
		"completed_sections": session.CompletedSections,
		"total_sections":     session.TotalSections,
	})
	c.Writer.Flush()

	// 终态会话没有后续事件，快照即完整内容
	if session.Status.IsTerminal() {
		return
	}

	ch := h.broadcaster.Attach(sessionID)
	defer h.broadcaster.Release(sessionID, ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				// 被新订阅者顶掉或会话清理
				return false
			}
			c.SSEvent(ev.Kind, ev.Data)
			if ev.Kind == article.EventCompleted || ev.Kind == article.EventError {
				return false
			}
			return true

		case <-c.Request.Context().Done():
			// 客户端断开
			return false
		}
	})
}
