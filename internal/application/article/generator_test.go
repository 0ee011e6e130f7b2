package article

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-article-api/internal/domain/entity"
)

func TestGenerateEndToEndThreeSections(t *testing.T) {
	env := newTestEnv(t,
		assistantToolCall("c1", "file_search", `{"query": "writing and seo guidelines"}`),
		assistantToolCall("c2", "plan_article", threeSectionPlanArgs),
		// 模型偶发的对话式回复，应触发纠偏消息注入而不是卡死
		schema.AssistantMessage("I have the plan ready. Shall I start writing?", nil),
		assistantToolCall("c3", "write_section", `{"section_title": "Intro", "markdown": "## Intro\n\nfirst section prose goes here", "is_last": false}`),
		assistantToolCall("c4", "write_section", `{"section_title": "Body", "markdown": "## Body\n\nsecond section prose with more words", "is_last": false}`),
		assistantToolCall("c5", "write_section", `{"section_title": "Conclusion", "markdown": "## Conclusion\n\nclosing prose", "is_last": true}`),
	)
	session := env.newSession(t)
	ch := env.broadcaster.Attach(session.ID)

	out, err := env.gen.Generate(context.Background(), &GenerateInput{Session: session})
	require.NoError(t, err)

	assert.Equal(t, session.ID, out.SessionID)
	assert.Equal(t, entity.SessionStatusCompleted, out.Status)
	assert.Equal(t, 3, out.SectionCount)

	// 三个章节按序持久化且全部完成
	ctx := context.Background()
	rows, err := env.sections.ListByVersion(ctx, "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	wordSum := 0
	for i, row := range rows {
		assert.Equal(t, i+1, row.SectionNumber)
		assert.Equal(t, entity.SectionStatusCompleted, row.Status)
		wordSum += row.WordCount
	}
	assert.Equal(t, wordSum, out.WordCount)

	stored, err := env.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	// 装配结果写入 workflow，含按序排列的三个 H2 标题
	wf, err := env.workflows.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	step, ok := wf.Steps[entity.StepArticleDraft]
	require.True(t, ok)
	article := step.Outputs["full_article"].(string)
	introIdx := strings.Index(article, "## Intro")
	bodyIdx := strings.Index(article, "## Body")
	conclIdx := strings.Index(article, "## Conclusion")
	require.GreaterOrEqual(t, introIdx, 0)
	require.Greater(t, bodyIdx, introIdx)
	require.Greater(t, conclIdx, bodyIdx)
	assert.Equal(t, wordSum, step.Outputs["word_count"])

	// completed 事件恰好一次
	events := drainEvents(ch)
	assert.Equal(t, 1, countEvents(events, EventCompleted))
	assert.Equal(t, 3, countEvents(events, EventSection))
	assert.Equal(t, 1, countEvents(events, EventPlan))
	assert.Zero(t, countEvents(events, EventError))

	// 纠偏消息确实进入了对话
	nudged := false
	for _, msg := range env.model.lastTranscript() {
		if msg.Role == schema.User && strings.Contains(msg.Content, "Do not wait for confirmation") {
			nudged = true
		}
	}
	assert.True(t, nudged, "corrective user message should be injected after a conversational reply")

	// 工具定义已绑定到模型
	require.NotEmpty(t, env.model.boundTools)
	toolNames := make([]string, 0, len(env.model.boundTools))
	for _, info := range env.model.boundTools {
		toolNames = append(toolNames, info.Name)
	}
	assert.Contains(t, toolNames, "plan_article")
	assert.Contains(t, toolNames, "write_section")
	assert.Contains(t, toolNames, "read_previous_sections")
	assert.Contains(t, toolNames, "file_search")
	assert.Contains(t, toolNames, "web_search")
}

func TestGenerateMarksSessionErroredOnModelStall(t *testing.T) {
	// 模型持续返回对话文本，耗尽纠偏次数后整次生成失败
	replies := make([]*schema.Message, 0, maxNudges+2)
	for i := 0; i < maxNudges+2; i++ {
		replies = append(replies, schema.AssistantMessage("still chatting instead of working", nil))
	}
	env := newTestEnv(t, replies...)
	session := env.newSession(t)
	ch := env.broadcaster.Attach(session.ID)

	_, err := env.gen.Generate(context.Background(), &GenerateInput{Session: session})
	require.Error(t, err)

	stored, getErr := env.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, entity.SessionStatusError, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)

	events := drainEvents(ch)
	assert.Equal(t, 1, countEvents(events, EventError))
	assert.Zero(t, countEvents(events, EventCompleted))
}

func TestGenerateAbortsOnMessageCeiling(t *testing.T) {
	env := newTestEnv(t,
		assistantToolCall("c1", "plan_article", threeSectionPlanArgs),
		assistantToolCall("c2", "write_section", `{"section_title": "Intro", "markdown": "## Intro\n\ntext", "is_last": false}`),
	)
	env.gen.cfg.MaxMessages = 3
	session := env.newSession(t)

	_, err := env.gen.Generate(context.Background(), &GenerateInput{Session: session})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messages")

	stored, getErr := env.sessions.GetByID(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, entity.SessionStatusError, stored.Status)
}

func TestGenerateRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gen.Generate(context.Background(), nil)
	assert.Error(t, err)

	_, err = env.gen.Generate(context.Background(), &GenerateInput{})
	assert.Error(t, err)
}

func TestGenerateStreamsTextDeltas(t *testing.T) {
	env := newTestEnv(t,
		assistantToolCall("c1", "plan_article", `{"headline": "Short", "target_word_range": {"min": 50, "max": 100}, "sections": [
			{"title": "Only", "est_words": 60, "order": 1, "content_requirements": "everything"}
		]}`),
		schema.AssistantMessage("Writing the section now.", nil),
		assistantToolCall("c2", "write_section", `{"section_title": "Only", "markdown": "## Only\n\nshort body text", "is_last": true}`),
	)
	session := env.newSession(t)
	ch := env.broadcaster.Attach(session.ID)

	_, err := env.gen.Generate(context.Background(), &GenerateInput{Session: session})
	require.NoError(t, err)

	events := drainEvents(ch)
	require.Positive(t, countEvents(events, EventText))
	for _, ev := range events {
		if ev.Kind == EventText {
			assert.NotEmpty(t, ev.Data["delta"])
		}
	}
}
