package article

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
	"agentic-article-api/pkg/logger"
)

// Assembler 负责把持久化章节拼装为完整文章并写回 workflow
type Assembler struct {
	sections  repository.SectionRepository
	workflows repository.WorkflowRepository
	markdown  goldmark.Markdown
}

// NewAssembler 创建文章装配器
func NewAssembler(sections repository.SectionRepository, workflows repository.WorkflowRepository) *Assembler {
	return &Assembler{
		sections:  sections,
		workflows: workflows,
		markdown:  goldmark.New(),
	}
}

// Assemble 拼装指定 (workflow, version) 的全部已完成章节。
// 返回文章全文、总字数（持久化章节字数之和）与章节数。
func (a *Assembler) Assemble(ctx context.Context, workflowID string, version int) (string, int, int, error) {
	sections, err := a.sections.ListCompleted(ctx, workflowID, version, 0)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to list completed sections: %w", err)
	}
	if len(sections) == 0 {
		return "", 0, 0, fmt.Errorf("no completed sections for workflow %s version %d", workflowID, version)
	}

	blocks := make([]string, 0, len(sections))
	totalWords := 0
	for _, s := range sections {
		blocks = append(blocks, a.normalizeSectionHeading(s.Content, s.Title))
		totalWords += s.WordCount
	}

	return strings.Join(blocks, "\n\n"), totalWords, len(sections), nil
}

// FinalizeDraft 拼装文章并把结果写入 workflow 对应步骤的 outputs
func (a *Assembler) FinalizeDraft(ctx context.Context, workflowID string, version int) (*entity.ArticleDraftOutputs, error) {
	fullArticle, totalWords, sectionCount, err := a.Assemble(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}

	draft := &entity.ArticleDraftOutputs{
		FullArticle:    fullArticle,
		WordCount:      totalWords,
		SectionCount:   sectionCount,
		DraftStatus:    entity.DraftStatusCompleted,
		AgentGenerated: true,
		GeneratedAt:    time.Now().UTC(),
	}

	outputs := map[string]any{
		"full_article":    draft.FullArticle,
		"word_count":      draft.WordCount,
		"section_count":   draft.SectionCount,
		"draft_status":    draft.DraftStatus,
		"agent_generated": draft.AgentGenerated,
		"generated_at":    draft.GeneratedAt,
	}
	if err := a.workflows.UpdateStepOutputs(ctx, workflowID, entity.StepArticleDraft, outputs); err != nil {
		return nil, fmt.Errorf("failed to write article draft outputs: %w", err)
	}

	logger.Info(ctx, "article draft finalized",
		"workflow_id", workflowID,
		"version", version,
		"section_count", sectionCount,
		"word_count", totalWords,
	)
	return draft, nil
}

// normalizeSectionHeading 将章节开头的标题规范为与计划标题一致的 H2：
// 已有匹配 H2 保持原样；匹配的 H3 提升为 H2；没有匹配标题时前置规范 H2。
func (a *Assembler) normalizeSectionHeading(markdown, canonicalTitle string) string {
	src := []byte(markdown)
	doc := a.markdown.Parser().Parse(gmtext.NewReader(src))

	heading, _ := doc.FirstChild().(*ast.Heading)
	if heading != nil && heading.Lines().Len() > 0 {
		headingText := headingTextOf(heading, src)
		if headingKey(headingText) == headingKey(canonicalTitle) {
			switch heading.Level {
			case 2:
				return markdown
			case 3:
				return rewriteHeadingLine(markdown, heading, "## "+headingText)
			}
		}
	}

	return "## " + canonicalTitle + "\n\n" + strings.TrimLeft(markdown, "\n")
}

// headingTextOf 提取标题节点覆盖的原文文本
func headingTextOf(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for i := 0; i < h.Lines().Len(); i++ {
		seg := h.Lines().At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimSpace(sb.String())
}

// rewriteHeadingLine 用给定文本替换标题所在的整行
func rewriteHeadingLine(markdown string, h *ast.Heading, replacement string) string {
	first := h.Lines().At(0)
	last := h.Lines().At(h.Lines().Len() - 1)

	lineStart := first.Start
	for lineStart > 0 && markdown[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := last.Stop
	if lineEnd > len(markdown) {
		lineEnd = len(markdown)
	}

	return markdown[:lineStart] + replacement + markdown[lineEnd:]
}

// headingKey 标题匹配键：小写并剔除全部非字母数字字符
func headingKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
