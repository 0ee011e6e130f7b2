package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"agentic-article-api/internal/application/article"
	"agentic-article-api/internal/interfaces/http/dto"
	"agentic-article-api/pkg/errors"
	"agentic-article-api/pkg/logger"
)

// ArticleHandler 文章生成处理器
type ArticleHandler struct {
	svc *article.Service
}

// NewArticleHandler 创建文章生成处理器
func NewArticleHandler(svc *article.Service) *ArticleHandler {
	return &ArticleHandler{svc: svc}
}

// Generate 发起文章生成
// @Summary 发起文章生成
// @Description 为指定 workflow 创建新版本生成会话并异步执行，立即返回 202
// @Tags Articles
// @Accept json
// @Produce json
// @Param wid path string true "Workflow ID"
// @Param body body dto.GenerateArticleRequest true "生成参数"
// @Success 202 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/workflows/{wid}/articles/generate [post]
func (h *ArticleHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	workflowID := c.Param("wid")

	var req dto.GenerateArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Outline) == "" {
		dto.BadRequest(c, "outline must not be empty")
		return
	}

	session, err := h.svc.StartGeneration(ctx, workflowID, req.Outline, req.Provider)
	if err != nil {
		if errors.IsAppError(err) {
			appErr := errors.AsAppError(err)
			dto.Error(c, appErr.HTTPStatus, appErr.Message)
			return
		}
		logger.Error(ctx, "failed to start article generation", err, "workflow_id", workflowID)
		dto.InternalError(c, "failed to start article generation")
		return
	}

	dto.Accepted(c, dto.ToSessionResponse(session))
}

// GetSession 获取生成会话详情
// @Summary 获取生成会话详情
// @Tags Articles
// @Produce json
// @Param sid path string true "Session ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/articles/sessions/{sid} [get]
func (h *ArticleHandler) GetSession(c *gin.Context) {
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

	dto.Success(c, dto.ToSessionResponse(session))
}

// GetProgress 获取会话进度快照
// @Summary 获取会话进度快照
// @Description 返回会话、本版本全部章节及聚合进度计数，结果带短 TTL 缓存
// @Tags Articles
// @Produce json
// @Param sid path string true "Session ID"
// @Success 200 {object} dto.Response[dto.ProgressResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/articles/sessions/{sid}/progress [get]
func (h *ArticleHandler) GetProgress(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sid")

	progress, err := h.svc.GetProgress(ctx, sessionID)
	if err != nil {
		logger.Error(ctx, "failed to get session progress", err, "session_id", sessionID)
		dto.InternalError(c, "failed to get session progress")
		return
	}
	if progress == nil {
		dto.NotFound(c, "generation session not found")
		return
	}

	dto.Success(c, dto.ToProgressResponse(progress))
}
