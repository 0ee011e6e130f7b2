package article

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-article-api/internal/domain/entity"
	workflowprompt "agentic-article-api/internal/workflow/prompt"
)

func TestBuildPrimingMessages(t *testing.T) {
	registry := workflowprompt.NewRegistry()
	session := entity.NewGenerationSession("wf-1", 1, "  Topic: testing strategies\n- unit\n- integration  ", []string{"Keep it short", "No jargon"})

	msgs, err := buildPrimingMessages(context.Background(), registry, session)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "plan_article")
	assert.Contains(t, msgs[0].Content, "write_section")

	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Topic: testing strategies")
	assert.Contains(t, msgs[1].Content, "- Keep it short")
	assert.Contains(t, msgs[1].Content, "- No jargon")
}

func TestStyleRulesBlock(t *testing.T) {
	assert.Empty(t, styleRulesBlock(nil))

	block := styleRulesBlock([]string{"rule one", "rule two"})
	assert.True(t, strings.HasPrefix(block, "Writing style rules"))
	assert.Contains(t, block, "- rule one\n- rule two")
	assert.False(t, strings.HasSuffix(block, "\n"))
}

func TestFirstSectionInstructions(t *testing.T) {
	plan := &entity.PlannedSection{Title: "Intro", EstWords: 300, Order: 1, ContentRequirements: "hook the reader"}

	multi := firstSectionInstructions(plan, 3)
	assert.Contains(t, multi, "section 1 of 3")
	assert.Contains(t, multi, "Title: Intro")
	assert.Contains(t, multi, "about 300 words")
	assert.Contains(t, multi, "hook the reader")
	assert.Contains(t, multi, "is_last to false")

	single := firstSectionInstructions(plan, 1)
	assert.Contains(t, single, "is_last to true")
}

func TestContinuationInstructions(t *testing.T) {
	written := &entity.ArticleSection{
		SectionNumber: 1,
		Title:         "Intro",
		Content:       "## Intro\n\nopening paragraph\n\nThe ending thought carries into the body.",
		WordCount:     42,
	}
	next := &entity.PlannedSection{Title: "Body", EstWords: 800, Order: 2, ContentRequirements: "go deep"}

	mid := continuationInstructions(written, next, 1, 3)
	assert.Contains(t, mid, "1 of 3 sections done")
	assert.Contains(t, mid, "The previous section ends with:\n> The ending thought carries into the body.")
	assert.Contains(t, mid, "Now write section 2 of 3")
	assert.Contains(t, mid, "Title: Body")
	assert.Contains(t, mid, "is_last to false")

	last := continuationInstructions(written, next, 2, 3)
	assert.Contains(t, last, "is_last to true")
}

func TestLastParagraphExcerpt(t *testing.T) {
	t.Run("返回最后一个正文段落", func(t *testing.T) {
		md := "## Title\n\nfirst paragraph\n\nsecond paragraph"
		assert.Equal(t, "second paragraph", lastParagraphExcerpt(md, 300))
	})

	t.Run("跳过末尾的标题与空段", func(t *testing.T) {
		md := "body text\n\n## Trailing Heading\n\n   "
		assert.Equal(t, "body text", lastParagraphExcerpt(md, 300))
	})

	t.Run("超长时保留结尾", func(t *testing.T) {
		long := strings.Repeat("a", 50) + "END"
		got := lastParagraphExcerpt(long, 10)
		assert.True(t, strings.HasPrefix(got, "..."))
		assert.True(t, strings.HasSuffix(got, "END"))
		assert.Len(t, []rune(got), 13)
	})

	t.Run("纯标题内容返回空", func(t *testing.T) {
		assert.Empty(t, lastParagraphExcerpt("## Only Heading", 300))
	})
}
