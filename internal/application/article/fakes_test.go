package article

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
)

// memSessionRepo 内存版会话仓储
type memSessionRepo struct {
	mu           sync.Mutex
	byID         map[string]*entity.GenerationSession
	conflictHits int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byID: make(map[string]*entity.GenerationSession)}
}

func copySession(s *entity.GenerationSession) *entity.GenerationSession {
	cp := *s
	if s.Metadata != nil {
		meta := *s.Metadata
		cp.Metadata = &meta
	}
	return &cp
}

func (r *memSessionRepo) Create(_ context.Context, session *entity.GenerationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictHits > 0 {
		r.conflictHits--
		return repository.ErrVersionConflict
	}
	for _, existing := range r.byID {
		if existing.WorkflowID == session.WorkflowID && existing.Version == session.Version {
			return repository.ErrVersionConflict
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	r.byID[session.ID] = copySession(session)
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*entity.GenerationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *memSessionRepo) Update(_ context.Context, session *entity.GenerationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[session.ID]; !ok {
		return fmt.Errorf("session %s not found", session.ID)
	}
	r.byID[session.ID] = copySession(session)
	return nil
}

func (r *memSessionRepo) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	for k, v := range fields {
		switch k {
		case "status":
			s.Status = entity.SessionStatus(v.(string))
		case "error_message":
			s.ErrorMessage = v.(string)
		case "completed_sections":
			s.CompletedSections = v.(int)
		case "current_word_count":
			s.CurrentWordCount = v.(int)
		case "completed_at":
			t := v.(time.Time)
			s.CompletedAt = &t
		case "updated_at":
			s.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *memSessionRepo) GetMaxVersion(_ context.Context, workflowID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxVersion := 0
	for _, s := range r.byID {
		if s.WorkflowID == workflowID && s.Version > maxVersion {
			maxVersion = s.Version
		}
	}
	return maxVersion, nil
}

// memSectionRepo 内存版章节仓储
type memSectionRepo struct {
	mu       sync.Mutex
	sections []*entity.ArticleSection
}

func newMemSectionRepo() *memSectionRepo {
	return &memSectionRepo{}
}

func copySectionRow(s *entity.ArticleSection) *entity.ArticleSection {
	cp := *s
	if s.Metadata != nil {
		meta := *s.Metadata
		cp.Metadata = &meta
	}
	return &cp
}

func (r *memSectionRepo) CreateBatch(_ context.Context, sections []*entity.ArticleSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range sections {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		r.sections = append(r.sections, copySectionRow(s))
	}
	return nil
}

func (r *memSectionRepo) GetByNumber(_ context.Context, workflowID string, version, sectionNumber int) (*entity.ArticleSection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sections {
		if s.WorkflowID == workflowID && s.Version == version && s.SectionNumber == sectionNumber {
			return copySectionRow(s), nil
		}
	}
	return nil, nil
}

func (r *memSectionRepo) Update(_ context.Context, section *entity.ArticleSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.sections {
		if s.WorkflowID == section.WorkflowID && s.Version == section.Version && s.SectionNumber == section.SectionNumber {
			r.sections[i] = copySectionRow(section)
			return nil
		}
	}
	return fmt.Errorf("section %d not found", section.SectionNumber)
}

func (r *memSectionRepo) ListByVersion(_ context.Context, workflowID string, version int) ([]*entity.ArticleSection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.ArticleSection
	for _, s := range r.sections {
		if s.WorkflowID == workflowID && s.Version == version {
			out = append(out, copySectionRow(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SectionNumber < out[j].SectionNumber })
	return out, nil
}

func (r *memSectionRepo) ListCompleted(_ context.Context, workflowID string, version, limit int) ([]*entity.ArticleSection, error) {
	all, _ := r.ListByVersion(nil, workflowID, version)

	var out []*entity.ArticleSection
	for _, s := range all {
		if s.Status == entity.SectionStatusCompleted {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// memWorkflowRepo 内存版 workflow 仓储
type memWorkflowRepo struct {
	mu   sync.Mutex
	byID map[string]*entity.Workflow
}

func newMemWorkflowRepo(workflows ...*entity.Workflow) *memWorkflowRepo {
	r := &memWorkflowRepo{byID: make(map[string]*entity.Workflow)}
	for _, w := range workflows {
		r.byID[w.ID] = w
	}
	return r
}

func (r *memWorkflowRepo) GetByID(_ context.Context, id string) (*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWorkflowRepo) UpdateStepOutputs(_ context.Context, workflowID, stepKey string, outputs map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[workflowID]
	if !ok {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	if w.Steps == nil {
		w.Steps = make(map[string]entity.WorkflowStep)
	}
	step := w.Steps[stepKey]
	step.Outputs = outputs
	w.Steps[stepKey] = step
	return nil
}

// scriptedChatModel 按脚本逐条回放回复的假模型
type scriptedChatModel struct {
	mu          sync.Mutex
	replies     []*schema.Message
	transcripts [][]*schema.Message
	boundTools  []*schema.ToolInfo
}

func newScriptedChatModel(replies ...*schema.Message) *scriptedChatModel {
	return &scriptedChatModel{replies: replies}
}

func (m *scriptedChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]*schema.Message, len(input))
	copy(snapshot, input)
	m.transcripts = append(m.transcripts, snapshot)

	if len(m.replies) == 0 {
		return nil, fmt.Errorf("scripted model has no replies left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reply, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{reply}), nil
}

func (m *scriptedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.boundTools = tools
	m.mu.Unlock()
	return m, nil
}

// lastTranscript 返回最近一次模型调用收到的完整消息列表
func (m *scriptedChatModel) lastTranscript() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.transcripts) == 0 {
		return nil
	}
	return m.transcripts[len(m.transcripts)-1]
}

// fakeModelFactory 固定返回同一个假模型的工厂
type fakeModelFactory struct {
	model model.BaseChatModel
}

func (f *fakeModelFactory) Get(_ context.Context, _ string) (model.BaseChatModel, error) {
	return f.model, nil
}

func assistantToolCall(id, name, arguments string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{
				ID:   id,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      name,
					Arguments: arguments,
				},
			},
		},
	}
}
