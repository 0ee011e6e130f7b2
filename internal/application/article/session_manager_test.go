package article

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
)

func TestStartSessionAssignsMonotonicVersions(t *testing.T) {
	sessions := newMemSessionRepo()
	m := NewSessionManager(sessions, newMemSectionRepo(), nil, 0)
	ctx := context.Background()

	first, err := m.StartSession(ctx, "wf-1", "outline one")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, entity.SessionStatusPlanning, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, DefaultStyleRules, []string(first.StyleRules))

	second, err := m.StartSession(ctx, "wf-1", "outline two")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	// 不同 workflow 的版本独立计数
	other, err := m.StartSession(ctx, "wf-2", "outline")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version)
}

func TestStartSessionRetriesOnVersionConflict(t *testing.T) {
	sessions := newMemSessionRepo()
	sessions.conflictHits = 1
	m := NewSessionManager(sessions, newMemSectionRepo(), nil, 0)

	session, err := m.StartSession(context.Background(), "wf-1", "outline")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Version)
}

func TestStartSessionGivesUpAfterRepeatedConflicts(t *testing.T) {
	sessions := newMemSessionRepo()
	sessions.conflictHits = 2
	m := NewSessionManager(sessions, newMemSectionRepo(), nil, 0)

	_, err := m.StartSession(context.Background(), "wf-1", "outline")
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestGetSessionReturnsNilForAbsent(t *testing.T) {
	m := NewSessionManager(newMemSessionRepo(), newMemSectionRepo(), nil, 0)

	session, err := m.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetProgressJoinsSessionAndSections(t *testing.T) {
	sessions := newMemSessionRepo()
	sectionRepo := newMemSectionRepo()
	m := NewSessionManager(sessions, sectionRepo, nil, 0)
	ctx := context.Background()

	session, err := m.StartSession(ctx, "wf-1", "outline")
	require.NoError(t, err)

	session.TotalSections = 2
	session.CompletedSections = 1
	session.CurrentWordCount = 120
	session.TargetWordCount = 500
	require.NoError(t, sessions.Update(ctx, session))

	require.NoError(t, sectionRepo.CreateBatch(ctx, []*entity.ArticleSection{
		completedSection("wf-1", session.Version, 1, "Intro", "## Intro\n\nsome words"),
		entity.NewPendingSection("wf-1", session.Version, entity.PlannedSection{Title: "Body", Order: 2}),
	}))

	progress, err := m.GetProgress(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, progress)

	assert.Equal(t, session.ID, progress.Session.ID)
	require.Len(t, progress.Sections, 2)
	assert.Equal(t, 1, progress.Sections[0].SectionNumber)
	assert.Equal(t, 2, progress.Sections[1].SectionNumber)

	assert.Equal(t, 2, progress.Progress.Total)
	assert.Equal(t, 1, progress.Progress.Completed)
	assert.Equal(t, 120, progress.Progress.CurrentWordCount)
	assert.Equal(t, 500, progress.Progress.TargetWordCount)
}

func TestGetProgressReturnsNilForAbsentSession(t *testing.T) {
	m := NewSessionManager(newMemSessionRepo(), newMemSectionRepo(), nil, 0)

	progress, err := m.GetProgress(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, progress)
}
