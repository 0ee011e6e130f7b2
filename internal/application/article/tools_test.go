package article

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-article-api/internal/config"
	"agentic-article-api/internal/domain/entity"
	workflowprompt "agentic-article-api/internal/workflow/prompt"
)

const threeSectionPlanArgs = `{
	"headline": "A Practical Guide",
	"target_word_range": {"min": 1000, "max": 1400},
	"sections": [
		{"title": "Intro", "est_words": 300, "order": 1, "content_requirements": "hook the reader with a concrete scenario"},
		{"title": "Body", "est_words": 800, "order": 2, "content_requirements": "cover the three main techniques with examples"},
		{"title": "Conclusion", "est_words": 200, "order": 3, "content_requirements": "summarize and give one next step"}
	],
	"writing_style_notes": "friendly, direct"
}`

type testEnv struct {
	gen         *Generator
	sessions    *memSessionRepo
	sections    *memSectionRepo
	workflows   *memWorkflowRepo
	broadcaster *Broadcaster
	model       *scriptedChatModel
}

func newTestEnv(t *testing.T, replies ...*schema.Message) *testEnv {
	t.Helper()

	sessions := newMemSessionRepo()
	sections := newMemSectionRepo()
	workflows := newMemWorkflowRepo(&entity.Workflow{ID: "wf-1"})
	broadcaster := NewBroadcaster()
	chatModel := newScriptedChatModel(replies...)

	cfg := &config.Config{
		Generation: config.GenerationConfig{
			MaxMessages:   100,
			MaxSections:   20,
			MaxToolRounds: 50,
			RunTimeout:    time.Minute,
		},
		LLM: config.LLMConfig{DefaultProvider: "test"},
	}

	gen := NewGenerator(
		&fakeModelFactory{model: chatModel},
		workflowprompt.NewRegistry(),
		sessions,
		sections,
		NewAssembler(sections, workflows),
		broadcaster,
		nil,
		nil,
		nil,
		nil,
		cfg,
	)

	return &testEnv{
		gen:         gen,
		sessions:    sessions,
		sections:    sections,
		workflows:   workflows,
		broadcaster: broadcaster,
		model:       chatModel,
	}
}

func (e *testEnv) newSession(t *testing.T) *entity.GenerationSession {
	t.Helper()
	session := entity.NewGenerationSession("wf-1", 1, "outline text", DefaultStyleRules)
	require.NoError(t, e.sessions.Create(context.Background(), session))
	return session
}

func (e *testEnv) planSession(t *testing.T, tc *toolContext) {
	t.Helper()
	out, err := newPlanArticleTool(tc).InvokableRun(context.Background(), threeSectionPlanArgs)
	require.NoError(t, err)
	require.NotContains(t, out, `"error"`)
}

func errorPayloadOf(t *testing.T, out string) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	return payload.Error
}

func TestWriteSectionRejectedBeforePlan(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newWriteSectionTool(tc).InvokableRun(context.Background(),
		`{"section_title": "Intro", "markdown": "## Intro\n\ntext", "is_last": false}`)
	require.NoError(t, err)
	assert.Contains(t, errorPayloadOf(t, out), "plan_article")

	// 无副作用
	rows, err := env.sections.ListByVersion(context.Background(), "wf-1", 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, entity.SessionStatusPlanning, session.Status)
}

func TestPlanArticleTransitionsSessionAndCreatesPendingRows(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	ch := env.broadcaster.Attach(session.ID)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newPlanArticleTool(tc).InvokableRun(context.Background(), threeSectionPlanArgs)
	require.NoError(t, err)

	// 返回值携带首章写作指令，属于控制协议的一部分
	assert.Contains(t, out, "section 1")
	assert.Contains(t, out, "Intro")
	assert.Contains(t, out, "hook the reader")

	assert.Equal(t, entity.SessionStatusWriting, session.Status)
	assert.Equal(t, 3, session.TotalSections)
	assert.Equal(t, 1300, session.TargetWordCount)
	require.NotNil(t, session.Metadata)
	assert.Equal(t, "A Practical Guide", session.Metadata.Headline)
	require.Len(t, session.Metadata.PlannedSections, 3)

	rows, err := env.sections.ListByVersion(context.Background(), "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i+1, row.SectionNumber)
		assert.Equal(t, entity.SectionStatusPending, row.Status)
	}

	events := drainEvents(ch)
	assert.Equal(t, 1, countEvents(events, EventPlan))
	assert.Equal(t, 1, countEvents(events, EventStatus))
}

func TestPlanArticleRejectedOnceWriting(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}
	env.planSession(t, tc)

	out, err := newPlanArticleTool(tc).InvokableRun(context.Background(), threeSectionPlanArgs)
	require.NoError(t, err)
	assert.Contains(t, errorPayloadOf(t, out), "already recorded")
}

func TestPlanArticleRejectsNonConsecutiveOrders(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newPlanArticleTool(tc).InvokableRun(context.Background(),
		`{"headline": "X", "target_word_range": {"min": 100, "max": 200}, "sections": [
			{"title": "A", "est_words": 100, "order": 1, "content_requirements": "a"},
			{"title": "B", "est_words": 100, "order": 3, "content_requirements": "b"}
		]}`)
	require.NoError(t, err)
	assert.Contains(t, errorPayloadOf(t, out), "consecutive")
	assert.Equal(t, entity.SessionStatusPlanning, session.Status)
}

func TestWriteSectionReconcilesPendingRowAndUpdatesCounters(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}
	env.planSession(t, tc)
	ch := env.broadcaster.Attach(session.ID)

	markdown := "## Intro\n\nfive words of intro prose"
	out, err := newWriteSectionTool(tc).InvokableRun(context.Background(),
		`{"section_title": "Intro", "markdown": "## Intro\n\nfive words of intro prose", "is_last": false}`)
	require.NoError(t, err)

	// 续写指令包含下一章 brief 与上一章结尾摘录
	assert.Contains(t, out, "section 2")
	assert.Contains(t, out, "Body")
	assert.Contains(t, out, "three main techniques")
	assert.Contains(t, out, "five words of intro prose")

	// 占位行被原地回填，不新增行
	rows, err := env.sections.ListByVersion(context.Background(), "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, entity.SectionStatusCompleted, rows[0].Status)
	assert.Equal(t, entity.CountWords(markdown), rows[0].WordCount)
	assert.Equal(t, entity.SectionStatusPending, rows[1].Status)

	assert.Equal(t, 1, session.CompletedSections)
	assert.Equal(t, entity.CountWords(markdown), session.CurrentWordCount)

	stored, err := env.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CompletedSections)
	assert.Equal(t, session.CurrentWordCount, stored.CurrentWordCount)

	events := drainEvents(ch)
	assert.Equal(t, 1, countEvents(events, EventSection))
	assert.Zero(t, countEvents(events, EventCompleted))
}

func TestWriteSectionWordCountIsAdditive(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}
	env.planSession(t, tc)

	tool := newWriteSectionTool(tc)
	ctx := context.Background()

	_, err := tool.InvokableRun(ctx, `{"section_title": "Intro", "markdown": "## Intro\n\none two three", "is_last": false}`)
	require.NoError(t, err)
	_, err = tool.InvokableRun(ctx, `{"section_title": "Body", "markdown": "## Body\n\nfour five six seven", "is_last": false}`)
	require.NoError(t, err)
	_, err = tool.InvokableRun(ctx, `{"section_title": "Conclusion", "markdown": "## Conclusion\n\neight nine", "is_last": true}`)
	require.NoError(t, err)

	rows, err := env.sections.ListCompleted(ctx, "wf-1", 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	sum := 0
	for _, row := range rows {
		sum += row.WordCount
	}
	assert.Equal(t, sum, session.CurrentWordCount)
}

func TestWriteSectionIsLastFinalizesSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}
	env.planSession(t, tc)
	ch := env.broadcaster.Attach(session.ID)

	tool := newWriteSectionTool(tc)
	ctx := context.Background()
	_, err := tool.InvokableRun(ctx, `{"section_title": "Intro", "markdown": "## Intro\n\nalpha beta", "is_last": false}`)
	require.NoError(t, err)
	_, err = tool.InvokableRun(ctx, `{"section_title": "Body", "markdown": "## Body\n\ngamma delta epsilon", "is_last": false}`)
	require.NoError(t, err)
	out, err := tool.InvokableRun(ctx, `{"section_title": "Conclusion", "markdown": "## Conclusion\n\nzeta eta", "is_last": true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Article complete")

	assert.Equal(t, entity.SessionStatusCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)

	wf, err := env.workflows.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	step, ok := wf.Steps[entity.StepArticleDraft]
	require.True(t, ok)
	assert.Equal(t, entity.DraftStatusCompleted, step.Outputs["draft_status"])
	assert.Equal(t, true, step.Outputs["agent_generated"])

	events := drainEvents(ch)
	assert.Equal(t, 3, countEvents(events, EventSection))
	assert.Equal(t, 1, countEvents(events, EventCompleted))
}

func TestWriteSectionAutoFinalizesWhenPlanExhausted(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	_, err := newPlanArticleTool(tc).InvokableRun(context.Background(),
		`{"headline": "Short", "target_word_range": {"min": 100, "max": 200}, "sections": [
			{"title": "Only", "est_words": 150, "order": 1, "content_requirements": "everything"}
		]}`)
	require.NoError(t, err)

	// 模型漏标 is_last，但计划内章节已全部写完
	out, err := newWriteSectionTool(tc).InvokableRun(context.Background(),
		`{"section_title": "Only", "markdown": "## Only\n\nshort body", "is_last": false}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Article complete")
	assert.Equal(t, entity.SessionStatusCompleted, session.Status)
}

func TestWriteSectionRejectedAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	session.Status = entity.SessionStatusCompleted
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newWriteSectionTool(tc).InvokableRun(context.Background(),
		`{"section_title": "More", "markdown": "## More\n\ntext", "is_last": false}`)
	require.NoError(t, err)
	assert.Contains(t, errorPayloadOf(t, out), "finished")
}

func TestReadPreviousSectionsReturnsSentinelWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newReadPreviousSectionsTool(tc).InvokableRun(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Contains(t, out, "No previous sections")
}

func TestReadPreviousSectionsReturnsMostRecent(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}
	ctx := context.Background()

	require.NoError(t, env.sections.CreateBatch(ctx, []*entity.ArticleSection{
		completedSection("wf-1", 1, 1, "Intro", "intro body"),
		completedSection("wf-1", 1, 2, "Body", "main body"),
		completedSection("wf-1", 1, 3, "Extra", "extra body"),
	}))

	out, err := newReadPreviousSectionsTool(tc).InvokableRun(ctx, `{"last_n_sections": 2}`)
	require.NoError(t, err)
	assert.NotContains(t, out, "Intro")
	assert.Contains(t, out, "## Body")
	assert.Contains(t, out, "## Extra")
	assert.Contains(t, out, "extra body")
}

func TestFileSearchDegradesWithoutEngine(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newFileSearchTool(tc).InvokableRun(context.Background(), `{"query": "seo guidelines"}`)
	require.NoError(t, err)

	var payload struct {
		Results []any  `json:"results"`
		Note    string `json:"note"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Empty(t, payload.Results)
	assert.NotEmpty(t, payload.Note)
}

func TestWebSearchDegradesWithoutClient(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t)
	tc := &toolContext{gen: env.gen, session: session}

	out, err := newWebSearchTool(tc).InvokableRun(context.Background(), `{"query": "latest statistics"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "not available")
}
