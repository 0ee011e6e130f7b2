package article

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"agentic-article-api/internal/domain/entity"
	workflowprompt "agentic-article-api/internal/workflow/prompt"
)

// correctiveContinueMessage 模型返回纯文本而非工具调用时注入的纠偏消息
const correctiveContinueMessage = "Continue the automated writing workflow now. Do not wait for confirmation and do not reply with plain text. " +
	"Call plan_article if you have not planned yet, otherwise call write_section for the next planned section."

// excerptMaxRunes 续写提示中上一章节结尾摘录的最大长度
const excerptMaxRunes = 300

// buildPrimingMessages 构造首轮消息：大纲素材 + 风格规则 + 规划指令
func buildPrimingMessages(ctx context.Context, registry *workflowprompt.Registry, session *entity.GenerationSession) ([]*schema.Message, error) {
	tpl, err := registry.ChatTemplate(workflowprompt.PromptArticlePrimingV1)
	if err != nil {
		return nil, err
	}

	return tpl.Format(ctx, map[string]any{
		"outline":           strings.TrimSpace(session.Outline),
		"style_rules_block": styleRulesBlock(session.StyleRules),
	})
}

func styleRulesBlock(rules []string) string {
	if len(rules) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Writing style rules for this article:\n")
	for _, r := range rules {
		sb.WriteString("- ")
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// firstSectionInstructions 规划确认后返回给模型的首章写作指令，
// 该返回值本身是控制协议的一部分
func firstSectionInstructions(plan *entity.PlannedSection, totalSections int) string {
	var sb strings.Builder
	sb.WriteString("Plan recorded. ")
	fmt.Fprintf(&sb, "The article has %d sections. Now write section 1 of %d.\n\n", totalSections, totalSections)
	writeSectionBrief(&sb, plan)
	sb.WriteString("\nWrite the full markdown for this section and submit it with write_section. Set is_last to ")
	if totalSections == 1 {
		sb.WriteString("true.")
	} else {
		sb.WriteString("false.")
	}
	return sb.String()
}

// continuationInstructions 一章写完后返回给模型的续写指令：
// 携带上一章结尾摘录以保证过渡连贯，以及下一章的标题、字数与内容要求
func continuationInstructions(written *entity.ArticleSection, next *entity.PlannedSection, completed, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Section %d (%q) recorded, %d words. %d of %d sections done.\n\n", written.SectionNumber, written.Title, written.WordCount, completed, total)

	if excerpt := lastParagraphExcerpt(written.Content, excerptMaxRunes); excerpt != "" {
		sb.WriteString("The previous section ends with:\n> ")
		sb.WriteString(excerpt)
		sb.WriteString("\n\nMake the opening of the next section flow naturally from that ending.\n\n")
	}

	fmt.Fprintf(&sb, "Now write section %d of %d.\n\n", completed+1, total)
	writeSectionBrief(&sb, next)
	sb.WriteString("\nSubmit it with write_section. Set is_last to ")
	if completed+1 >= total {
		sb.WriteString("true, this is the final section.")
	} else {
		sb.WriteString("false.")
	}
	return sb.String()
}

func writeSectionBrief(sb *strings.Builder, plan *entity.PlannedSection) {
	fmt.Fprintf(sb, "Title: %s\n", plan.Title)
	if plan.EstWords > 0 {
		fmt.Fprintf(sb, "Target length: about %d words\n", plan.EstWords)
	}
	if strings.TrimSpace(plan.ContentRequirements) != "" {
		fmt.Fprintf(sb, "Content requirements: %s\n", plan.ContentRequirements)
	}
}

// lastParagraphExcerpt 取 markdown 的最后一个正文段落，超长时保留结尾部分
func lastParagraphExcerpt(markdown string, maxRunes int) string {
	paragraphs := strings.Split(markdown, "\n\n")
	for i := len(paragraphs) - 1; i >= 0; i-- {
		p := strings.TrimSpace(paragraphs[i])
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		runes := []rune(p)
		if len(runes) > maxRunes {
			return "..." + string(runes[len(runes)-maxRunes:])
		}
		return p
	}
	return ""
}
