package article

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"agentic-article-api/internal/application/retrieval"
	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/infrastructure/messaging"
	"agentic-article-api/pkg/logger"
	"agentic-article-api/pkg/metrics"
)

const (
	toolNamePlanArticle          = "plan_article"
	toolNameReadPreviousSections = "read_previous_sections"
	toolNameWriteSection         = "write_section"
	toolNameFileSearch           = "file_search"
	toolNameWebSearch            = "web_search"
)

// toolContext 同一次生成运行内所有工具共享的可变状态
type toolContext struct {
	gen     *Generator
	session *entity.GenerationSession
}

// toolErrorPayload 把模型可自行纠正的错误包装为 JSON 载荷返回，
// 而不是让整个生成流程失败
func toolErrorPayload(msg string) string {
	b, _ := json.Marshal(map[string]any{"error": msg})
	return string(b)
}

func observeToolCall(name string, start time.Time, status string) {
	metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.ToolCallTotal.WithLabelValues(name, status).Inc()
}

// ---------------------------------------------------------------------------
// plan_article
// ---------------------------------------------------------------------------

type planArticleTool struct {
	tc *toolContext
}

func newPlanArticleTool(tc *toolContext) *planArticleTool {
	return &planArticleTool{tc: tc}
}

func (t *planArticleTool) GetType() string { return toolNamePlanArticle }

func (t *planArticleTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: toolNamePlanArticle,
		Desc: "Record the article plan. Must be called exactly once, before any write_section call. Transitions the session from planning to writing.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"headline": {
				Type:     schema.String,
				Desc:     "The article headline",
				Required: true,
			},
			"target_word_range": {
				Type: schema.Object,
				Desc: "Target total word count range for the article",
				SubParams: map[string]*schema.ParameterInfo{
					"min": {Type: schema.Integer, Desc: "Lower bound", Required: true},
					"max": {Type: schema.Integer, Desc: "Upper bound", Required: true},
				},
				Required: true,
			},
			"sections": {
				Type:     schema.Array,
				Desc:     "Ordered list of planned sections",
				Required: true,
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"title":                {Type: schema.String, Desc: "Section title", Required: true},
						"est_words":            {Type: schema.Integer, Desc: "Estimated word count", Required: true},
						"order":                {Type: schema.Integer, Desc: "1-based position in the article", Required: true},
						"content_requirements": {Type: schema.String, Desc: "Detailed brief of what this section must cover", Required: true},
					},
				},
			},
			"writing_style_notes": {
				Type: schema.String,
				Desc: "Style observations extracted from the guidelines and outline",
			},
		}),
	}, nil
}

func (t *planArticleTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	start := time.Now()

	var args struct {
		Headline        string `json:"headline"`
		TargetWordRange struct {
			Min int `json:"min"`
			Max int `json:"max"`
		} `json:"target_word_range"`
		Sections []struct {
			Title               string `json:"title"`
			EstWords            int    `json:"est_words"`
			Order               int    `json:"order"`
			ContentRequirements string `json:"content_requirements"`
		} `json:"sections"`
		WritingStyleNotes string `json:"writing_style_notes"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		observeToolCall(toolNamePlanArticle, start, "invalid")
		return toolErrorPayload(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	session := t.tc.session
	gen := t.tc.gen

	if session.Status != entity.SessionStatusPlanning {
		observeToolCall(toolNamePlanArticle, start, "rejected")
		return toolErrorPayload("plan already recorded, continue with write_section"), nil
	}
	if strings.TrimSpace(args.Headline) == "" {
		observeToolCall(toolNamePlanArticle, start, "invalid")
		return toolErrorPayload("headline is required"), nil
	}
	if len(args.Sections) == 0 {
		observeToolCall(toolNamePlanArticle, start, "invalid")
		return toolErrorPayload("at least one section is required"), nil
	}
	if len(args.Sections) > gen.cfg.MaxSections {
		observeToolCall(toolNamePlanArticle, start, "invalid")
		return toolErrorPayload(fmt.Sprintf("too many sections, the limit is %d", gen.cfg.MaxSections)), nil
	}

	planned := make([]entity.PlannedSection, 0, len(args.Sections))
	for _, s := range args.Sections {
		if strings.TrimSpace(s.Title) == "" {
			observeToolCall(toolNamePlanArticle, start, "invalid")
			return toolErrorPayload("every section needs a title"), nil
		}
		planned = append(planned, entity.PlannedSection{
			Title:               strings.TrimSpace(s.Title),
			Order:               s.Order,
			EstWords:            s.EstWords,
			ContentRequirements: strings.TrimSpace(s.ContentRequirements),
		})
	}
	sort.Slice(planned, func(i, j int) bool { return planned[i].Order < planned[j].Order })
	for i := range planned {
		if planned[i].Order != i+1 {
			observeToolCall(toolNamePlanArticle, start, "invalid")
			return toolErrorPayload("section orders must be consecutive starting at 1"), nil
		}
	}

	targetWords := 0
	for _, p := range planned {
		targetWords += p.EstWords
	}
	if targetWords == 0 {
		targetWords = (args.TargetWordRange.Min + args.TargetWordRange.Max) / 2
	}

	session.Status = entity.SessionStatusWriting
	session.TotalSections = len(planned)
	session.TargetWordCount = targetWords
	session.Metadata = &entity.SessionMetadata{
		Headline:          strings.TrimSpace(args.Headline),
		TargetWordRange:   &entity.WordRange{Min: args.TargetWordRange.Min, Max: args.TargetWordRange.Max},
		PlannedSections:   planned,
		WritingStyleNotes: strings.TrimSpace(args.WritingStyleNotes),
	}
	if err := gen.sessions.Update(ctx, session); err != nil {
		observeToolCall(toolNamePlanArticle, start, "error")
		return "", fmt.Errorf("failed to persist plan: %w", err)
	}

	pending := make([]*entity.ArticleSection, 0, len(planned))
	for _, p := range planned {
		pending = append(pending, entity.NewPendingSection(session.WorkflowID, session.Version, p))
	}
	if err := gen.sections.CreateBatch(ctx, pending); err != nil {
		observeToolCall(toolNamePlanArticle, start, "error")
		return "", fmt.Errorf("failed to create pending sections: %w", err)
	}

	gen.invalidateProgress(ctx, session.ID)
	gen.broadcaster.Push(session.ID, ProgressEvent{Kind: EventPlan, Data: map[string]any{
		"headline":       session.Metadata.Headline,
		"total_sections": session.TotalSections,
		"target_words":   session.TargetWordCount,
		"sections":       planned,
	}})
	gen.broadcaster.Push(session.ID, ProgressEvent{Kind: EventStatus, Data: map[string]any{
		"status": string(entity.SessionStatusWriting),
	}})

	logger.Info(ctx, "article plan recorded",
		"session_id", session.ID,
		"total_sections", session.TotalSections,
		"target_words", session.TargetWordCount,
	)
	observeToolCall(toolNamePlanArticle, start, "success")
	return firstSectionInstructions(&planned[0], len(planned)), nil
}

// ---------------------------------------------------------------------------
// read_previous_sections
// ---------------------------------------------------------------------------

type readPreviousSectionsTool struct {
	tc *toolContext
}

func newReadPreviousSectionsTool(tc *toolContext) *readPreviousSectionsTool {
	return &readPreviousSectionsTool{tc: tc}
}

func (t *readPreviousSectionsTool) GetType() string { return toolNameReadPreviousSections }

func (t *readPreviousSectionsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: toolNameReadPreviousSections,
		Desc: "Read back the most recently completed sections of this article, titles and full content, for context.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"last_n_sections": {
				Type: schema.Integer,
				Desc: "How many of the most recent sections to return, default 3",
			},
		}),
	}, nil
}

func (t *readPreviousSectionsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	start := time.Now()

	var args struct {
		LastNSections int `json:"last_n_sections"`
	}
	_ = json.Unmarshal([]byte(argumentsInJSON), &args)

	n := args.LastNSections
	if n <= 0 {
		n = 3
	}
	if n > 10 {
		n = 10
	}

	session := t.tc.session
	sections, err := t.tc.gen.sections.ListCompleted(ctx, session.WorkflowID, session.Version, n)
	if err != nil {
		observeToolCall(toolNameReadPreviousSections, start, "error")
		return "", fmt.Errorf("failed to read previous sections: %w", err)
	}
	if len(sections) == 0 {
		observeToolCall(toolNameReadPreviousSections, start, "success")
		return "No previous sections have been written yet.", nil
	}

	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", s.Title, s.Content)
	}
	observeToolCall(toolNameReadPreviousSections, start, "success")
	return sb.String(), nil
}

// ---------------------------------------------------------------------------
// write_section
// ---------------------------------------------------------------------------

type writeSectionTool struct {
	tc *toolContext
}

func newWriteSectionTool(tc *toolContext) *writeSectionTool {
	return &writeSectionTool{tc: tc}
}

func (t *writeSectionTool) GetType() string { return toolNameWriteSection }

func (t *writeSectionTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: toolNameWriteSection,
		Desc: "Submit the full markdown for the next section of the article. Sections must be written strictly in planned order, one call per section.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"section_title": {
				Type:     schema.String,
				Desc:     "Title of the section being submitted",
				Required: true,
			},
			"markdown": {
				Type:     schema.String,
				Desc:     "Complete markdown body of the section, including its heading",
				Required: true,
			},
			"is_last": {
				Type:     schema.Boolean,
				Desc:     "True only when this is the final section of the article",
				Required: true,
			},
		}),
	}, nil
}

func (t *writeSectionTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	start := time.Now()

	var args struct {
		SectionTitle string `json:"section_title"`
		Markdown     string `json:"markdown"`
		IsLast       bool   `json:"is_last"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		observeToolCall(toolNameWriteSection, start, "invalid")
		return toolErrorPayload(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	session := t.tc.session
	gen := t.tc.gen

	if session.Status == entity.SessionStatusPlanning {
		observeToolCall(toolNameWriteSection, start, "rejected")
		return toolErrorPayload("no plan recorded yet, call plan_article first"), nil
	}
	if session.Status.IsTerminal() {
		observeToolCall(toolNameWriteSection, start, "rejected")
		return toolErrorPayload("the session is already finished"), nil
	}
	if strings.TrimSpace(args.Markdown) == "" {
		observeToolCall(toolNameWriteSection, start, "invalid")
		return toolErrorPayload("markdown content is required"), nil
	}

	ordinal := session.CompletedSections + 1
	if ordinal > gen.cfg.MaxSections {
		observeToolCall(toolNameWriteSection, start, "error")
		return "", fmt.Errorf("section limit exceeded: %d", gen.cfg.MaxSections)
	}

	// 优先回填规划阶段创建的占位行，计划外的章节才新插入
	section, err := gen.sections.GetByNumber(ctx, session.WorkflowID, session.Version, ordinal)
	if err != nil {
		observeToolCall(toolNameWriteSection, start, "error")
		return "", fmt.Errorf("failed to load section %d: %w", ordinal, err)
	}
	if section != nil {
		section.Complete(args.SectionTitle, args.Markdown)
		err = gen.sections.Update(ctx, section)
	} else {
		section = &entity.ArticleSection{
			WorkflowID:    session.WorkflowID,
			Version:       session.Version,
			SectionNumber: ordinal,
			Status:        entity.SectionStatusPending,
		}
		section.Complete(args.SectionTitle, args.Markdown)
		err = gen.sections.CreateBatch(ctx, []*entity.ArticleSection{section})
	}
	if err != nil {
		observeToolCall(toolNameWriteSection, start, "error")
		return "", fmt.Errorf("failed to persist section %d: %w", ordinal, err)
	}

	session.CompletedSections = ordinal
	session.CurrentWordCount += section.WordCount
	if err := gen.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"completed_sections": session.CompletedSections,
		"current_word_count": session.CurrentWordCount,
	}); err != nil {
		observeToolCall(toolNameWriteSection, start, "error")
		return "", fmt.Errorf("failed to update session counters: %w", err)
	}
	gen.invalidateProgress(ctx, session.ID)

	gen.broadcaster.Push(session.ID, ProgressEvent{Kind: EventSection, Data: map[string]any{
		"section_number": section.SectionNumber,
		"title":          section.Title,
		"word_count":     section.WordCount,
		"completed":      session.CompletedSections,
		"total":          session.TotalSections,
	}})
	gen.publishEvent(ctx, messaging.EventSectionCompleted, &messaging.SessionEventMessage{
		SessionID:      session.ID,
		WorkflowID:     session.WorkflowID,
		Version:        session.Version,
		Status:         string(session.Status),
		SectionNumber:  section.SectionNumber,
		SectionTitle:   section.Title,
		TotalWordCount: session.CurrentWordCount,
	})

	logger.Info(ctx, "section written",
		"session_id", session.ID,
		"section_number", section.SectionNumber,
		"word_count", section.WordCount,
		"is_last", args.IsLast,
	)

	next := session.NextPlannedSection()

	// 模型漏标 is_last 但计划内章节已全部写完时，照终章处理
	if args.IsLast || next == nil {
		confirmation, err := t.finalize(ctx)
		if err != nil {
			observeToolCall(toolNameWriteSection, start, "error")
			return "", err
		}
		observeToolCall(toolNameWriteSection, start, "success")
		return confirmation, nil
	}

	observeToolCall(toolNameWriteSection, start, "success")
	return continuationInstructions(section, next, session.CompletedSections, session.TotalSections), nil
}

// finalize 拼装全文、写回 workflow、标记会话完成并广播终态事件
func (t *writeSectionTool) finalize(ctx context.Context) (string, error) {
	session := t.tc.session
	gen := t.tc.gen

	draft, err := gen.assembler.FinalizeDraft(ctx, session.WorkflowID, session.Version)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if err := gen.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"status":       string(entity.SessionStatusCompleted),
		"completed_at": now,
	}); err != nil {
		return "", fmt.Errorf("failed to mark session completed: %w", err)
	}
	session.Status = entity.SessionStatusCompleted
	session.CompletedAt = &now
	gen.invalidateProgress(ctx, session.ID)

	gen.broadcaster.Push(session.ID, ProgressEvent{Kind: EventCompleted, Data: map[string]any{
		"full_article":  draft.FullArticle,
		"section_count": draft.SectionCount,
		"word_count":    draft.WordCount,
	}})
	gen.publishEvent(ctx, messaging.EventSessionCompleted, &messaging.SessionEventMessage{
		SessionID:      session.ID,
		WorkflowID:     session.WorkflowID,
		Version:        session.Version,
		Status:         string(entity.SessionStatusCompleted),
		TotalWordCount: draft.WordCount,
	})

	metrics.ArticleWordCount.Observe(float64(draft.WordCount))
	metrics.SectionsPerArticle.Observe(float64(draft.SectionCount))

	return fmt.Sprintf("Article complete. %d sections assembled, %d words total.", draft.SectionCount, draft.WordCount), nil
}

// ---------------------------------------------------------------------------
// file_search
// ---------------------------------------------------------------------------

type fileSearchTool struct {
	tc *toolContext
}

func newFileSearchTool(tc *toolContext) *fileSearchTool {
	return &fileSearchTool{tc: tc}
}

func (t *fileSearchTool) GetType() string { return toolNameFileSearch }

func (t *fileSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: toolNameFileSearch,
		Desc: "Semantic search over the project's writing and SEO guideline documents. Use before planning.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for in the guidelines",
				Required: true,
			},
			"top_k": {
				Type: schema.Integer,
				Desc: "How many snippets to return, default 5",
			},
		}),
	}, nil
}

func (t *fileSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	start := time.Now()

	var args struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		observeToolCall(toolNameFileSearch, start, "invalid")
		return toolErrorPayload(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		observeToolCall(toolNameFileSearch, start, "invalid")
		return toolErrorPayload("query is required"), nil
	}

	engine := t.tc.gen.retrieval
	if engine == nil || !engine.Enabled() {
		observeToolCall(toolNameFileSearch, start, "disabled")
		b, _ := json.Marshal(map[string]any{
			"results": []any{},
			"note":    "guideline search is not available, proceed with the default style rules",
		})
		return string(b), nil
	}

	hits, err := engine.SearchGuidelines(ctx, args.Query, args.TopK)
	if err != nil {
		observeToolCall(toolNameFileSearch, start, "error")
		return toolErrorPayload(fmt.Sprintf("guideline search failed: %v", err)), nil
	}
	if hits == nil {
		hits = []*retrieval.GuidelineHit{}
	}

	observeToolCall(toolNameFileSearch, start, "success")
	b, _ := json.Marshal(map[string]any{"results": hits})
	return string(b), nil
}

// ---------------------------------------------------------------------------
// web_search
// ---------------------------------------------------------------------------

type webSearchTool struct {
	tc *toolContext
}

func newWebSearchTool(tc *toolContext) *webSearchTool {
	return &webSearchTool{tc: tc}
}

func (t *webSearchTool) GetType() string { return toolNameWebSearch }

func (t *webSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: toolNameWebSearch,
		Desc: "Search the web for facts, data points and supporting sources for the section being written.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Search query",
				Required: true,
			},
			"max_results": {
				Type: schema.Integer,
				Desc: "How many results to return, default 5",
			},
		}),
	}, nil
}

func (t *webSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	start := time.Now()

	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		observeToolCall(toolNameWebSearch, start, "invalid")
		return toolErrorPayload(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		observeToolCall(toolNameWebSearch, start, "invalid")
		return toolErrorPayload("query is required"), nil
	}

	client := t.tc.gen.search
	if client == nil || !client.Enabled() {
		observeToolCall(toolNameWebSearch, start, "disabled")
		b, _ := json.Marshal(map[string]any{
			"results": []any{},
			"note":    "web search is not available, rely on the outline material",
		})
		return string(b), nil
	}

	results, err := client.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		observeToolCall(toolNameWebSearch, start, "error")
		return toolErrorPayload(fmt.Sprintf("web search failed: %v", err)), nil
	}

	observeToolCall(toolNameWebSearch, start, "success")
	b, _ := json.Marshal(map[string]any{"results": results})
	return string(b), nil
}
