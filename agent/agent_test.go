package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/tool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newTestAgent(t *testing.T, cfg config.AgentConfig, llm model.Model, optFns ...func(o *Options)) *Agent {
	t.Helper()
	a, err := New("test", cfg, llm, optFns...)
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a := newTestAgent(t, config.AgentConfig{}, model.NewEchoModel(""))
		assert.Equal(t, "test", a.ID())
		assert.Equal(t, "test", a.Name())
		assert.Equal(t, config.DefaultMaxHistory, a.Config().MaxHistory)
		// tools default on with the calculator
		assert.Equal(t, []string{tool.CalculatorName}, a.Tools())
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := New("x", config.AgentConfig{}, nil)
		assert.True(t, core.IsConfiguration(err))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := New(" ", config.AgentConfig{}, model.NewEchoModel(""))
		assert.True(t, core.IsConfiguration(err))
	})
}

func TestAgent_Chat_EmptyMessage(t *testing.T) {
	llm := model.NewScriptedModel("m")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm)

	out := a.Chat(context.Background(), "   ")
	assert.Equal(t, ApologyPrefix+core.ErrEmptyMessage.Error(), out)
	assert.Empty(t, llm.Requests())
	assert.Empty(t, a.History())
}

func TestAgent_Chat_DefaultSystemPrompt(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("ok")
	cfg := testutil.NewAgentConfigBuilder("A").Prompt("").Build()
	a := newTestAgent(t, cfg, llm)

	a.Chat(context.Background(), "hi")
	contents := llm.LastRequest().Contents
	require.NotEmpty(t, contents)
	assert.Equal(t, core.RoleSystem, contents[0].Role)
	assert.Equal(t, "You are a helpful AI assistant.", contents[0].Text())
}

func TestAgent_Chat_TemplatedSystemPrompt(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("ok")
	cfg := testutil.NewAgentConfigBuilder("Helper").Prompt("You are {{.agent_name}} ({{.agent_id}}).").Build()
	a := newTestAgent(t, cfg, llm)

	a.Chat(context.Background(), "hi")
	assert.Equal(t, "You are Helper (test).", llm.LastRequest().Contents[0].Text())
}

func TestAgent_Chat_InstructionOverride(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("ok")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm, func(o *Options) {
		o.Instruction = NewInstructionFromFunc(func(d PromptData) (string, error) {
			return "dynamic " + d.AgentID, nil
		})
	})

	a.Chat(context.Background(), "hi")
	assert.Equal(t, "dynamic test", llm.LastRequest().Contents[0].Text())
}

func TestAgent_Chat_RecordsTurn(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("Hello!")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm)

	out := a.Chat(context.Background(), "Hi")
	assert.Equal(t, "Hello!", out)

	h := a.History()
	require.Len(t, h, 2)
	assert.Equal(t, core.RoleUser, h[0].Role)
	assert.Equal(t, "Hi", h[0].Content)
	assert.Equal(t, core.RoleAssistant, h[1].Role)
	assert.Equal(t, "Hello!", h[1].Content)
	assert.Equal(t, false, h[1].Metadata[core.MetadataUsedTools])
	assert.Empty(t, h[1].ToolsExecuted())
	assert.NotEmpty(t, h[0].ID)
	assert.NotEqual(t, h[0].ID, h[1].ID)
}

func TestAgent_Chat_HistoryTruncation(t *testing.T) {
	const maxHistory = 2
	llm := model.NewScriptedModel("m")
	total := 2*maxHistory + 3
	for i := 1; i <= total+1; i++ {
		llm.RespondText(fmt.Sprintf("reply %d", i))
	}
	cfg := testutil.NewAgentConfigBuilder("A").MaxHistory(maxHistory).Build()
	a := newTestAgent(t, cfg, llm)
	ctx := context.Background()

	for i := 1; i <= total; i++ {
		a.Chat(ctx, fmt.Sprintf("message %d", i))
	}
	a.Chat(ctx, "final")

	contents := llm.LastRequest().Contents
	// system + last H exchanges + new user message
	require.Len(t, contents, 1+2*maxHistory+1)
	want := testutil.NewContentBuilder().
		System("You are a test assistant.").
		User("message 6").Assistant("reply 6").
		User("message 7").Assistant("reply 7").
		User("final").
		Build()
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}

	// the full conversation is retained for export
	assert.Len(t, a.History(), 2*(total+1))
}

func TestAgent_Chat_TurnAtomicity(t *testing.T) {
	llm := model.NewScriptedModel("m").
		RespondText("first").
		Fail(errors.New("connection refused"))
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm)
	ctx := context.Background()

	a.Chat(ctx, "one")
	before := a.History()
	require.Len(t, before, 2)

	out := a.Chat(ctx, "two")
	assert.True(t, strings.HasPrefix(out, ApologyPrefix))
	assert.Contains(t, out, "connection refused")
	assert.Equal(t, before, a.History())
}

func TestAgent_Chat_SecondInvocationFailureDiscardsTurn(t *testing.T) {
	llm := model.NewScriptedModel("m").
		Respond(model.NewToolCallResponse(core.FunctionCall{ID: "c1", Name: tool.CalculatorName, Arguments: `{"expression":"1+1"}`})).
		Fail(errors.New("rate limited"))
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Tools(true, false).Build(), llm)

	out := a.Chat(context.Background(), "what is 1+1?")
	assert.Contains(t, out, "rate limited")
	assert.Empty(t, a.History())
}

func TestAgent_Chat_ToolNotFound(t *testing.T) {
	call := core.FunctionCall{ID: "call-1", Name: "weather", Arguments: `{"city":"Paris"}`}
	llm := model.NewScriptedModel("m").
		Respond(model.NewToolCallResponse(call)).
		RespondText("I cannot check the weather.")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Tools(true, false).Build(), llm)

	out := a.Chat(context.Background(), "What's the weather in Paris?")
	assert.Equal(t, "I cannot check the weather.", out)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	want := testutil.NewContentBuilder().
		System("You are a test assistant.").
		User("What's the weather in Paris?").
		ToolCalls(call).
		ToolError("call-1", "weather", "Tool weather not found").
		Build()
	if diff := cmp.Diff(want, reqs[1].Contents); diff != "" {
		t.Fatalf("second round context mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, reqs[1].Tools, 1)

	h := a.History()
	require.Len(t, h, 2)
	assert.Equal(t, false, h[1].Metadata[core.MetadataUsedTools])
}

func TestAgent_Chat_ToolExecution(t *testing.T) {
	call := core.FunctionCall{ID: "c1", Name: tool.CalculatorName, Arguments: `{"expression":"2 + 3 * 4"}`}
	llm := model.NewScriptedModel("m").
		Respond(model.NewToolCallResponse(call)).
		RespondText("The answer is 14.")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Tools(true, false).Build(), llm)

	out := a.Chat(context.Background(), "What is 2 + 3 * 4?")
	assert.Equal(t, "The answer is 14.", out)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, tool.CalculatorName, reqs[0].Tools[0].Function.Name)

	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, []core.FunctionResponse{{ID: "c1", Name: tool.CalculatorName, Response: "14"}}, last.FunctionResponses())

	h := a.History()
	require.Len(t, h, 2)
	assert.Equal(t, true, h[1].Metadata[core.MetadataUsedTools])
	assert.Equal(t, []string{"calculator: 14"}, h[1].ToolsExecuted())
}

func TestAgent_Chat_ToolFailuresAreResults(t *testing.T) {
	calls := []core.FunctionCall{
		{ID: "c1", Name: tool.CalculatorName, Arguments: `{"expression":"1/0"}`},
		{ID: "c2", Name: tool.CalculatorName, Arguments: `{not json`},
		{ID: "c3", Name: tool.CalculatorName, Arguments: `{"expression":"2^3"}`},
	}
	llm := model.NewScriptedModel("m").
		Respond(model.NewToolCallResponse(calls...)).
		RespondText("done")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Tools(true, false).Build(), llm)

	assert.Equal(t, "done", a.Chat(context.Background(), "compute"))

	contents := llm.LastRequest().Contents
	require.Len(t, contents, 6)
	results := make([]core.FunctionResponse, 0, 3)
	for _, c := range contents[3:] {
		require.Equal(t, core.RoleTool, c.Role)
		results = append(results, c.FunctionResponses()...)
	}
	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].ID)
	assert.True(t, strings.HasPrefix(results[0].Error, "Error executing calculator: "))
	assert.Contains(t, results[0].Error, "division by zero")
	assert.True(t, strings.HasPrefix(results[1].Error, "Error executing calculator: invalid arguments"))
	assert.Equal(t, "8", results[2].Response)

	h := a.History()
	assert.Equal(t, []string{"calculator: 8"}, h[1].ToolsExecuted())
}

func TestAgent_Chat_SecondRoundToolCallsIgnored(t *testing.T) {
	first := core.FunctionCall{ID: "c1", Name: tool.CalculatorName, Arguments: `{"expression":"1+1"}`}
	second := &model.Response{Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{
		core.TextPart{Text: "It is 2."},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c2", Name: tool.CalculatorName, Arguments: `{"expression":"2+2"}`}},
	}}}
	llm := model.NewScriptedModel("m").Respond(model.NewToolCallResponse(first)).Respond(second)
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Tools(true, false).Build(), llm)

	assert.Equal(t, "It is 2.", a.Chat(context.Background(), "1+1?"))
	assert.Len(t, llm.Requests(), 2)
}

func TestAgent_Chat_EmptyResponseFallback(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("  \n ")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm)

	out := a.Chat(context.Background(), "Hello?")
	assert.Equal(t, FallbackResponse, out)

	h := a.History()
	require.Len(t, h, 2)
	assert.Equal(t, FallbackResponse, h[1].Content)
}

func TestAgent_Chat_InjectsRetrievedContext(t *testing.T) {
	retriever := &testutil.StaticRetriever{Results: []core.SearchResult{
		{ID: "1", Content: "Paris is the capital of France.", Score: 0.9, Metadata: map[string]any{"source": "geo.txt"}},
		{ID: "2", Content: "unrelated", Score: 0.1},
	}}
	llm := model.NewScriptedModel("m").RespondText("Paris.")
	cfg := testutil.NewAgentConfigBuilder("A").RAG(true).Build()
	a := newTestAgent(t, cfg, llm, func(o *Options) { o.Retriever = retriever })

	assert.Equal(t, "Paris.", a.Chat(context.Background(), "Capital of France?"))
	assert.Equal(t, []string{"Capital of France?"}, retriever.Queries())

	want := testutil.NewContentBuilder().
		System("You are a test assistant.").
		System(ContextPreamble + "\n\n[1] (source: geo.txt)\nParis is the capital of France.").
		User("Capital of France?").
		Build()
	if diff := cmp.Diff(want, llm.LastRequest().Contents); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}

	// injected context is not part of the conversation
	assert.Len(t, a.History(), 2)
}

func TestAgent_Chat_NoPassagesNoInjection(t *testing.T) {
	retriever := &testutil.StaticRetriever{}
	llm := model.NewScriptedModel("m").RespondText("ok")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").RAG(true).Build(), llm, func(o *Options) { o.Retriever = retriever })

	a.Chat(context.Background(), "q")
	assert.Len(t, llm.LastRequest().Contents, 2)
}

func TestAgent_Chat_DocumentSearchToolSuppressesInjection(t *testing.T) {
	retriever := &testutil.StaticRetriever{Results: []core.SearchResult{{Content: "x", Score: 1}}}
	llm := model.NewScriptedModel("m").RespondText("ok")
	cfg := testutil.NewAgentConfigBuilder("A").RAG(true).Tools(false, true).Build()
	a := newTestAgent(t, cfg, llm, func(o *Options) { o.Retriever = retriever })

	assert.Equal(t, []string{tool.DocumentSearchName}, a.Tools())
	a.Chat(context.Background(), "q")
	assert.Empty(t, retriever.Queries())
	assert.Len(t, llm.LastRequest().Contents, 2)
}

func TestAgent_Chat_RetrievalFailure(t *testing.T) {
	retriever := &testutil.StaticRetriever{Err: errors.New("index offline")}
	llm := model.NewScriptedModel("m").RespondText("unused")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").RAG(true).Build(), llm, func(o *Options) { o.Retriever = retriever })

	out := a.Chat(context.Background(), "q")
	assert.Equal(t, ApologyPrefix+"retrieval capability: index offline", out)
	assert.Empty(t, llm.Requests())
	assert.Empty(t, a.History())
}

func TestAgent_Chat_EndToEndContext(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("Hi there.").RespondText("Fine, thanks.")
	cfg := testutil.NewAgentConfigBuilder("A").MaxHistory(1).Build()
	a := newTestAgent(t, cfg, llm)
	ctx := context.Background()

	assert.Equal(t, "Hi there.", a.Chat(ctx, "Hello"))
	assert.Equal(t, "Fine, thanks.", a.Chat(ctx, "How are you?"))

	want := testutil.NewContentBuilder().
		System("You are a test assistant.").
		User("Hello").
		Assistant("Hi there.").
		User("How are you?").
		Build()
	if diff := cmp.Diff(want, llm.LastRequest().Contents); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
}

type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ model.Request) (*model.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingModel) Info() model.Info { return model.Info{Name: "blocking", Provider: "mock"} }

func TestAgent_Chat_InvokeTimeout(t *testing.T) {
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), blockingModel{}, func(o *Options) {
		o.InvokeTimeout = 20 * time.Millisecond
	})

	out := a.Chat(context.Background(), "hello")
	assert.Contains(t, out, context.DeadlineExceeded.Error())
	assert.Empty(t, a.History())
}

type nilModel struct{}

func (nilModel) Generate(context.Context, model.Request) (*model.Response, error) { return nil, nil }
func (nilModel) Info() model.Info                                                 { return model.Info{Name: "nil"} }

func TestAgent_Chat_NilResponse(t *testing.T) {
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), nilModel{})
	out := a.Chat(context.Background(), "hello")
	assert.Equal(t, ApologyPrefix+"model capability: model returned no response", out)
}

func TestAgent_ClearHistory(t *testing.T) {
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), model.NewEchoModel(""))
	a.Chat(context.Background(), "hi")
	require.Len(t, a.History(), 2)

	a.ClearHistory()
	assert.Empty(t, a.History())
	a.ClearHistory()
	assert.Empty(t, a.History())
}

func TestAgent_ReconfigureTools(t *testing.T) {
	llm := model.NewScriptedModel("m").RespondText("a").RespondText("b")
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), llm)
	ctx := context.Background()

	assert.Empty(t, a.Tools())
	a.Chat(ctx, "one")
	assert.Empty(t, llm.LastRequest().Tools)

	a.ReconfigureTools(tool.Flags{Calculator: true, DocumentSearch: true})
	// document search is skipped without a retriever
	assert.Equal(t, []string{tool.CalculatorName}, a.Tools())
	a.Chat(ctx, "two")
	assert.Len(t, llm.LastRequest().Tools, 1)

	// history survives reconfiguration
	assert.Len(t, a.History(), 4)
}

func TestAgent_Info(t *testing.T) {
	cfg := testutil.NewAgentConfigBuilder("Helper").Description("helps").RAG(true).MaxHistory(3).Tools(true, false).Build()
	a := newTestAgent(t, cfg, model.NewEchoModel(""))
	a.Chat(context.Background(), "hi")

	assert.Equal(t, Info{
		ID:           "test",
		Name:         "Helper",
		Description:  "helps",
		Tools:        []string{tool.CalculatorName},
		UseRAG:       true,
		MaxHistory:   3,
		MessageCount: 2,
	}, a.Info())
}

func TestAgent_ConcurrentChat(t *testing.T) {
	a := newTestAgent(t, testutil.NewAgentConfigBuilder("A").Build(), model.NewEchoModel(""))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := a.Chat(ctx, fmt.Sprintf("msg %d", i))
			assert.Equal(t, fmt.Sprintf("Echo: msg %d", i), out)
		}(i)
	}
	wg.Wait()

	h := a.History()
	require.Len(t, h, 20)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, core.RoleUser, h[i].Role)
		assert.Equal(t, "Echo: "+h[i].Content, h[i+1].Content)
	}
}

func TestExecuteCall_RecoversPanic(t *testing.T) {
	reg := tool.NewRegistry(tool.NewFunctionTool("explode", "panics", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) { panic("kaboom") }))

	o := executeCall(context.Background(), reg, core.FunctionCall{ID: "p1", Name: "explode"}, testLogger())
	assert.False(t, o.executed)
	assert.Equal(t, "p1", o.response.ID)
	assert.Equal(t, "Error executing explode: panic recovered: kaboom", o.response.Error)
}

func testLogger() logging.Logger { return logging.NoOpLogger{} }
