package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"agentic-article-api/internal/application/retrieval"
	"agentic-article-api/internal/config"
	"agentic-article-api/internal/domain/entity"
	"agentic-article-api/internal/domain/repository"
	"agentic-article-api/internal/infrastructure/messaging"
	"agentic-article-api/internal/infrastructure/persistence/redis"
	"agentic-article-api/internal/infrastructure/websearch"
	"agentic-article-api/internal/workflow/port"
	workflowprompt "agentic-article-api/internal/workflow/prompt"
	"agentic-article-api/pkg/logger"
	"agentic-article-api/pkg/metrics"
)

// maxNudges 纠偏消息注入次数上限，超过视为模型失控
const maxNudges = 5

// GenerateInput 单次文章生成的输入
type GenerateInput struct {
	Session  *entity.GenerationSession
	Provider string
}

// GenerateOutput 单次文章生成的结果摘要
type GenerateOutput struct {
	SessionID    string
	Status       entity.SessionStatus
	SectionCount int
	WordCount    int
}

// Generator 文章生成编排器：驱动模型多轮工具调用直至文章完成
type Generator struct {
	factory     port.ChatModelFactory
	registry    *workflowprompt.Registry
	sessions    repository.SessionRepository
	sections    repository.SectionRepository
	assembler   *Assembler
	broadcaster *Broadcaster
	producer    *messaging.Producer
	retrieval   *retrieval.Engine
	search      *websearch.Client
	cache       *redis.Cache
	cfg         config.GenerationConfig
	llmCfg      config.LLMConfig

	graphOnce sync.Once
	graph     compose.Runnable[*GenerateInput, *GenerateOutput]
	graphErr  error

	toolsNodeOnce sync.Once
	toolsNode     *compose.ToolsNode
	toolsNodeErr  error
}

// NewGenerator 创建文章生成编排器。
// producer、retrievalEngine、searchClient、cache 均可为 nil，对应能力降级。
func NewGenerator(
	factory port.ChatModelFactory,
	registry *workflowprompt.Registry,
	sessions repository.SessionRepository,
	sections repository.SectionRepository,
	assembler *Assembler,
	broadcaster *Broadcaster,
	producer *messaging.Producer,
	retrievalEngine *retrieval.Engine,
	searchClient *websearch.Client,
	cache *redis.Cache,
	cfg *config.Config,
) *Generator {
	gen := &Generator{
		factory:     factory,
		registry:    registry,
		sessions:    sessions,
		sections:    sections,
		assembler:   assembler,
		broadcaster: broadcaster,
		producer:    producer,
		retrieval:   retrievalEngine,
		search:      searchClient,
		cache:       cache,
		cfg:         cfg.Generation,
		llmCfg:      cfg.LLM,
	}
	if gen.cfg.MaxMessages <= 0 {
		gen.cfg.MaxMessages = 100
	}
	if gen.cfg.MaxSections <= 0 {
		gen.cfg.MaxSections = 20
	}
	if gen.cfg.MaxToolRounds <= 0 {
		gen.cfg.MaxToolRounds = 50
	}
	return gen
}

// Generate 运行一次完整的生成会话。任何内部错误都会把会话标记为
// error、广播 error 事件并向上抛出；重试需要调用方开启新版本会话。
func (g *Generator) Generate(ctx context.Context, in *GenerateInput) (out *GenerateOutput, err error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if g.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.RunTimeout)
		defer cancel()
	}
	ctx = logger.WithContext(ctx, logger.SessionIDKey, in.Session.ID)
	ctx = logger.WithContext(ctx, logger.WorkflowIDKey, in.Session.WorkflowID)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			g.markFailed(ctx, in.Session, err)
		}
		metrics.GenerationTotal.WithLabelValues(status).Inc()
		metrics.GenerationDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	g.broadcaster.Push(in.Session.ID, ProgressEvent{Kind: EventStatus, Data: map[string]any{
		"status": string(entity.SessionStatusPlanning),
	}})
	g.publishEvent(ctx, messaging.EventSessionStarted, &messaging.SessionEventMessage{
		SessionID:  in.Session.ID,
		WorkflowID: in.Session.WorkflowID,
		Version:    in.Session.Version,
		Status:     string(in.Session.Status),
	})

	graph, err := g.getGraph()
	if err != nil {
		return nil, err
	}
	return graph.Invoke(ctx, in, compose.WithRuntimeMaxSteps(g.cfg.MaxMessages*3))
}

// markFailed 顶层统一失败处理：落库、广播、发事件
func (g *Generator) markFailed(ctx context.Context, session *entity.GenerationSession, cause error) {
	// 运行超时或取消后仍要把失败状态写进数据库
	ctx = context.WithoutCancel(ctx)

	logger.Error(ctx, "article generation failed", cause)
	if err := g.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"status":        string(entity.SessionStatusError),
		"error_message": cause.Error(),
	}); err != nil {
		logger.Error(ctx, "failed to mark session as errored", err)
	}
	session.Status = entity.SessionStatusError
	session.ErrorMessage = cause.Error()
	g.invalidateProgress(ctx, session.ID)

	g.broadcaster.Push(session.ID, ProgressEvent{Kind: EventError, Data: map[string]any{
		"message": cause.Error(),
	}})
	g.publishEvent(ctx, messaging.EventSessionFailed, &messaging.SessionEventMessage{
		SessionID:  session.ID,
		WorkflowID: session.WorkflowID,
		Version:    session.Version,
		Status:     string(entity.SessionStatusError),
		Error:      cause.Error(),
	})
}

func (g *Generator) publishEvent(ctx context.Context, eventType string, event *messaging.SessionEventMessage) {
	if g.producer == nil {
		return
	}
	if _, err := g.producer.PublishSessionEvent(ctx, eventType, event); err != nil {
		logger.Warn(ctx, "failed to publish session event",
			"event_type", eventType,
			"session_id", event.SessionID,
			"error", err.Error(),
		)
	}
}

func (g *Generator) invalidateProgress(ctx context.Context, sessionID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Del(ctx, progressCacheKey(sessionID)); err != nil {
		logger.Warn(ctx, "failed to invalidate progress cache",
			"session_id", sessionID,
			"error", err.Error(),
		)
	}
}

// reactState 图在节点间传递的运行状态
type reactState struct {
	In            *GenerateInput
	TC            *toolContext
	ChatModel     model.BaseChatModel
	Messages      []*schema.Message
	LastAssistant *schema.Message
	Tools         []einotool.BaseTool
	ToolRounds    int
	Nudges        int
	Rounds        int
}

func (g *Generator) getGraph() (compose.Runnable[*GenerateInput, *GenerateOutput], error) {
	g.graphOnce.Do(func() {
		g.graph, g.graphErr = g.buildGraph(context.Background())
	})
	return g.graph, g.graphErr
}

// getToolsNode 懒加载 Eino 标准工具执行节点
func (g *Generator) getToolsNode() (*compose.ToolsNode, error) {
	g.toolsNodeOnce.Do(func() {
		g.toolsNode, g.toolsNodeErr = compose.NewToolNode(context.Background(), &compose.ToolsNodeConfig{
			// 工具列表按会话动态传入，见 compose.WithToolList
			Tools: nil,

			// 顺序执行，写作工具依赖前序工具更新的会话状态
			ExecuteSequentially: true,

			// 模型幻觉调用未注册工具时返回 JSON 错误而不是中断流程，
			// 让模型在下一轮看到错误并自我修正
			UnknownToolsHandler: func(_ context.Context, name, _ string) (string, error) {
				return toolErrorPayload(fmt.Sprintf("unknown tool: %s", name)), nil
			},
		})
	})
	return g.toolsNode, g.toolsNodeErr
}

// buildGraph 构建编排图（ReAct 循环）：
//
//	START -> init -> model
//	                  ↓
//	              <分支判断>
//	          /       |        \
//	  (有工具调用) (纯文本且未完) (会话已终态)
//	        ↓         ↓            ↓
//	      tools     nudge       finalize -> END
//	       ↓ ↖________↓
//	     model (循环)
func (g *Generator) buildGraph(ctx context.Context) (compose.Runnable[*GenerateInput, *GenerateOutput], error) {
	graph := compose.NewGraph[*GenerateInput, *GenerateOutput]()

	toolsNode, err := g.getToolsNode()
	if err != nil {
		return nil, err
	}

	// init: 首轮消息、工具集与模型绑定
	if err := graph.AddLambdaNode("init", compose.InvokableLambda(func(ctx context.Context, in *GenerateInput) (*reactState, error) {
		if in == nil || in.Session == nil {
			return nil, fmt.Errorf("input is nil")
		}

		msgs, err := buildPrimingMessages(ctx, g.registry, in.Session)
		if err != nil {
			return nil, err
		}

		baseModel, err := g.factory.Get(ctx, in.Provider)
		if err != nil {
			return nil, err
		}

		tc := &toolContext{gen: g, session: in.Session}
		tools := []einotool.BaseTool{
			newPlanArticleTool(tc),
			newReadPreviousSectionsTool(tc),
			newWriteSectionTool(tc),
			newFileSearchTool(tc),
			newWebSearchTool(tc),
		}

		toolInfos := make([]*schema.ToolInfo, 0, len(tools))
		for i := range tools {
			info, err := tools[i].Info(ctx)
			if err != nil {
				return nil, err
			}
			toolInfos = append(toolInfos, info)
		}

		chatModel := baseModel
		if tcm, ok := baseModel.(model.ToolCallingChatModel); ok {
			withTools, err := tcm.WithTools(toolInfos)
			if err == nil && withTools != nil {
				chatModel = withTools
			}
		}

		return &reactState{
			In:        in,
			TC:        tc,
			ChatModel: chatModel,
			Messages:  msgs,
			Tools:     tools,
		}, nil
	}), compose.WithNodeName("article.init")); err != nil {
		return nil, err
	}

	// model: 模型推理，流式增量实时转发给进度广播器
	if err := graph.AddLambdaNode("model", compose.InvokableLambda(func(ctx context.Context, st *reactState) (*reactState, error) {
		if st == nil || st.In == nil || st.ChatModel == nil {
			return nil, fmt.Errorf("state is nil")
		}
		if len(st.Messages) >= g.cfg.MaxMessages {
			return nil, fmt.Errorf("conversation exceeded %d messages", g.cfg.MaxMessages)
		}

		// 轮间限速，缓解上游限流
		if st.Rounds > 0 && g.cfg.RoundPacing > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.cfg.RoundPacing):
			}
		}

		outMsg, err := g.callModel(ctx, st)
		if err != nil {
			return nil, err
		}
		if outMsg == nil {
			return nil, fmt.Errorf("empty llm response")
		}

		for _, call := range outMsg.ToolCalls {
			g.broadcaster.Push(st.In.Session.ID, ProgressEvent{Kind: EventToolCall, Data: map[string]any{
				"tool":      call.Function.Name,
				"arguments": call.Function.Arguments,
			}})
		}

		st.LastAssistant = outMsg
		st.Messages = append(st.Messages, outMsg)
		st.Rounds++
		return st, nil
	}), compose.WithNodeName("article.model")); err != nil {
		return nil, err
	}

	// tools: 执行模型请求的工具调用，结果作为 tool 消息回灌对话
	if err := graph.AddLambdaNode("tools", compose.InvokableLambda(func(ctx context.Context, st *reactState) (*reactState, error) {
		if st == nil || st.LastAssistant == nil {
			return nil, fmt.Errorf("state is nil")
		}
		if len(st.LastAssistant.ToolCalls) == 0 {
			return st, nil
		}

		outMsgs, err := toolsNode.Invoke(ctx, st.LastAssistant, compose.WithToolList(st.Tools...))
		if err != nil {
			return nil, err
		}

		for _, m := range outMsgs {
			g.broadcaster.Push(st.In.Session.ID, ProgressEvent{Kind: EventToolOutput, Data: map[string]any{
				"tool_call_id": m.ToolCallID,
				"output":       truncateForEvent(m.Content, 500),
			}})
		}

		st.Messages = append(st.Messages, outMsgs...)
		st.ToolRounds++
		return st, nil
	}), compose.WithNodeName("article.tools")); err != nil {
		return nil, err
	}

	// nudge: 模型返回了纯对话文本，注入纠偏消息迫使其继续自动化流程
	if err := graph.AddLambdaNode("nudge", compose.InvokableLambda(func(ctx context.Context, st *reactState) (*reactState, error) {
		if st == nil {
			return nil, fmt.Errorf("state is nil")
		}
		st.Nudges++
		if st.Nudges > maxNudges {
			return nil, fmt.Errorf("model stalled after %d continuation nudges", maxNudges)
		}

		logger.Warn(ctx, "model produced conversational reply, injecting continuation nudge",
			"session_id", st.In.Session.ID,
			"nudges", st.Nudges,
		)
		st.Messages = append(st.Messages, schema.UserMessage(correctiveContinueMessage))
		return st, nil
	}), compose.WithNodeName("article.nudge")); err != nil {
		return nil, err
	}

	// finalize: 会话已由 write_section 终结，汇总运行结果
	if err := graph.AddLambdaNode("finalize", compose.InvokableLambda(func(ctx context.Context, st *reactState) (*GenerateOutput, error) {
		if st == nil || st.In == nil || st.In.Session == nil {
			return nil, fmt.Errorf("state is nil")
		}
		session := st.In.Session
		if session.Status != entity.SessionStatusCompleted {
			return nil, fmt.Errorf("conversation ended before the article was completed, status %s", session.Status)
		}

		return &GenerateOutput{
			SessionID:    session.ID,
			Status:       session.Status,
			SectionCount: session.CompletedSections,
			WordCount:    session.CurrentWordCount,
		}, nil
	}), compose.WithNodeName("article.finalize")); err != nil {
		return nil, err
	}

	if err := graph.AddEdge(compose.START, "init"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("init", "model"); err != nil {
		return nil, err
	}

	modelBranch := func(ctx context.Context, st *reactState) (string, error) {
		if st == nil || st.LastAssistant == nil {
			return "finalize", nil
		}
		if len(st.LastAssistant.ToolCalls) > 0 {
			if st.ToolRounds >= g.cfg.MaxToolRounds {
				return "", fmt.Errorf("too many tool rounds")
			}
			return "tools", nil
		}
		if st.In.Session.Status.IsTerminal() {
			return "finalize", nil
		}
		return "nudge", nil
	}
	if err := graph.AddBranch("model", compose.NewGraphBranch(modelBranch, map[string]bool{"tools": true, "nudge": true, "finalize": true})); err != nil {
		return nil, err
	}

	toolsBranch := func(ctx context.Context, st *reactState) (string, error) {
		if st != nil && st.In.Session.Status.IsTerminal() {
			return "finalize", nil
		}
		return "model", nil
	}
	if err := graph.AddBranch("tools", compose.NewGraphBranch(toolsBranch, map[string]bool{"model": true, "finalize": true})); err != nil {
		return nil, err
	}

	if err := graph.AddEdge("nudge", "model"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("finalize", compose.END); err != nil {
		return nil, err
	}

	return graph.Compile(ctx, compose.WithGraphName("article_generate_graph"))
}

// callModel 优先流式调用，把文本增量实时广播；流式不可用时退回阻塞调用
func (g *Generator) callModel(ctx context.Context, st *reactState) (*schema.Message, error) {
	providerName := st.In.Provider
	if providerName == "" {
		providerName = g.llmCfg.DefaultProvider
	}
	modelName := g.llmCfg.Providers[providerName].Model

	start := time.Now()
	outMsg, err := g.streamModel(ctx, st)
	if err != nil {
		logger.Warn(ctx, "llm stream failed, falling back to blocking call",
			"provider", providerName,
			"error", err.Error(),
		)
		outMsg, err = st.ChatModel.Generate(ctx, st.Messages)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())
	metrics.LLMCallTotal.WithLabelValues(providerName, modelName, status).Inc()
	if err != nil {
		return nil, err
	}

	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		usage := outMsg.ResponseMeta.Usage
		metrics.LLMTokensUsed.WithLabelValues(providerName, modelName, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(providerName, modelName, "completion").Add(float64(usage.CompletionTokens))
	}
	return outMsg, nil
}

func (g *Generator) streamModel(ctx context.Context, st *reactState) (*schema.Message, error) {
	reader, err := st.ChatModel.Stream(ctx, st.Messages)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}

		if chunk.Content != "" {
			g.broadcaster.Push(st.In.Session.ID, ProgressEvent{Kind: EventText, Data: map[string]any{
				"delta": chunk.Content,
			}})
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("empty stream")
	}
	return schema.ConcatMessages(chunks)
}

func truncateForEvent(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
