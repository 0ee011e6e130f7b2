package article

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-article-api/internal/domain/entity"
)

func completedSection(workflowID string, version, number int, title, content string) *entity.ArticleSection {
	s := &entity.ArticleSection{
		WorkflowID:    workflowID,
		Version:       version,
		SectionNumber: number,
	}
	s.Complete(title, content)
	return s
}

func TestNormalizeSectionHeadingKeepsMatchingH2(t *testing.T) {
	a := NewAssembler(nil, nil)

	md := "## Intro\n\nSome opening prose."
	assert.Equal(t, md, a.normalizeSectionHeading(md, "Intro"))
}

func TestNormalizeSectionHeadingMatchIgnoresCaseAndPunctuation(t *testing.T) {
	a := NewAssembler(nil, nil)

	md := "## What's Next?\n\nClosing prose."
	assert.Equal(t, md, a.normalizeSectionHeading(md, "whats next"))
}

func TestNormalizeSectionHeadingPromotesMatchingH3(t *testing.T) {
	a := NewAssembler(nil, nil)

	got := a.normalizeSectionHeading("### Getting Started!\n\nBody text.", "Getting Started")
	assert.Equal(t, "## Getting Started!\n\nBody text.", got)
}

func TestNormalizeSectionHeadingPrependsWhenMissing(t *testing.T) {
	a := NewAssembler(nil, nil)

	got := a.normalizeSectionHeading("Just prose without a heading.", "Background")
	assert.Equal(t, "## Background\n\nJust prose without a heading.", got)
}

func TestNormalizeSectionHeadingPrependsWhenHeadingDiffers(t *testing.T) {
	a := NewAssembler(nil, nil)

	got := a.normalizeSectionHeading("## Something Else\n\nBody.", "Intro")
	assert.True(t, strings.HasPrefix(got, "## Intro\n\n"))
	assert.Contains(t, got, "## Something Else")
}

func TestAssembleJoinsSectionsInOrder(t *testing.T) {
	sections := newMemSectionRepo()
	workflows := newMemWorkflowRepo(&entity.Workflow{ID: "wf-1"})
	a := NewAssembler(sections, workflows)

	ctx := context.Background()
	require.NoError(t, sections.CreateBatch(ctx, []*entity.ArticleSection{
		completedSection("wf-1", 1, 2, "Body", "## Body\n\nfour words right here"),
		completedSection("wf-1", 1, 1, "Intro", "## Intro\n\nthree words here"),
	}))

	article, words, count, err := a.Assemble(ctx, "wf-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	introIdx := strings.Index(article, "## Intro")
	bodyIdx := strings.Index(article, "## Body")
	require.GreaterOrEqual(t, introIdx, 0)
	require.Greater(t, bodyIdx, introIdx)

	// 总字数等于各持久化章节字数之和
	wantWords := entity.CountWords("## Intro\n\nthree words here") + entity.CountWords("## Body\n\nfour words right here")
	assert.Equal(t, wantWords, words)
}

func TestAssembleFailsWithoutCompletedSections(t *testing.T) {
	a := NewAssembler(newMemSectionRepo(), newMemWorkflowRepo())

	_, _, _, err := a.Assemble(context.Background(), "wf-1", 1)
	assert.Error(t, err)
}

func TestFinalizeDraftWritesWorkflowOutputs(t *testing.T) {
	sections := newMemSectionRepo()
	workflows := newMemWorkflowRepo(&entity.Workflow{
		ID: "wf-1",
		Steps: map[string]entity.WorkflowStep{
			"other_step": {Outputs: map[string]any{"keep": "me"}},
		},
	})
	a := NewAssembler(sections, workflows)

	ctx := context.Background()
	require.NoError(t, sections.CreateBatch(ctx, []*entity.ArticleSection{
		completedSection("wf-1", 1, 1, "Intro", "## Intro\n\nhello there readers"),
	}))

	draft, err := a.FinalizeDraft(ctx, "wf-1", 1)
	require.NoError(t, err)
	assert.Equal(t, entity.DraftStatusCompleted, draft.DraftStatus)
	assert.True(t, draft.AgentGenerated)
	assert.Equal(t, 1, draft.SectionCount)
	assert.False(t, draft.GeneratedAt.IsZero())

	wf, err := workflows.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	step, ok := wf.Steps[entity.StepArticleDraft]
	require.True(t, ok)
	assert.Equal(t, draft.FullArticle, step.Outputs["full_article"])
	assert.Equal(t, draft.WordCount, step.Outputs["word_count"])

	// 其它步骤不受影响
	assert.Equal(t, "me", wf.Steps["other_step"].Outputs["keep"])
}
