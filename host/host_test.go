package host

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/fanout"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/program"
	"github.com/hupe1980/agentcrew/protocol"
	"github.com/hupe1980/agentcrew/team"
	"github.com/hupe1980/agentcrew/tool"
)

// capturingModel wraps a MockModel and records every request it serves.
type capturingModel struct {
	*model.MockModel

	mu       sync.Mutex
	requests []model.Request
}

func newCapturingModel() *capturingModel {
	return &capturingModel{MockModel: model.NewMockModel("capture")}
}

func (m *capturingModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	return m.MockModel.Generate(ctx, req)
}

func (m *capturingModel) lastRequest() model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool(
		"echo",
		"Echo the value back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
			},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			v, _ := args["value"].(string)
			return v, nil
		},
	)
}

func testAgent(interp *program.Interpreter) *Agent {
	return &Agent{
		Info:        core.AgentInfo{ID: "agent-1", Name: "worker", Type: "worker"},
		Interpreter: interp,
	}
}

func TestRunSingleTurn(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("hello", "hi there")

	h := New(m, tool.NewRegistry())

	out, err := h.Run(context.Background(), testAgent(program.SingleTurn("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestRunRendersInstructionTemplate(t *testing.T) {
	m := newCapturingModel()
	m.Enqueue(model.Response{Text: "ok"})

	h := New(m, tool.NewRegistry())

	interp := program.New(
		func(_ *program.State, _ program.Result) (core.Directive, program.StepFunc, error) {
			return core.StepDirective{}, nil, nil
		},
		program.NewState("go", map[string]any{"role": "reviewer"}),
	)

	agent := testAgent(interp)
	agent.Instructions = "You are a {{.role}}."

	_, err := h.Run(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, "You are a reviewer.", m.lastRequest().Instructions)
}

func TestRunStepAllExecutesToolCallsUntilText(t *testing.T) {
	m := newCapturingModel()
	m.Enqueue(
		model.Response{ToolCalls: []core.ToolCall{
			{ID: "c1", Name: "echo", Input: map[string]any{"value": "ping"}},
		}},
		model.Response{Text: "all done"},
	)

	h := New(m, tool.NewRegistry(echoTool()))

	out, err := h.Run(context.Background(), testAgent(program.RunToCompletion("work")))
	require.NoError(t, err)
	assert.Equal(t, "all done", out)
	assert.Equal(t, 2, m.Calls())

	// The second turn saw the call and its result in context.
	req := m.lastRequest()
	var calls, results int
	for _, msg := range req.Messages {
		calls += len(msg.ToolCalls)
		results += len(msg.ToolResults)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, results)
}

func TestRunKeepsTextAlongsideToolCalls(t *testing.T) {
	m := newCapturingModel()
	m.Enqueue(
		model.Response{
			Text: "let me check that",
			ToolCalls: []core.ToolCall{
				{ID: "c1", Name: "echo", Input: map[string]any{"value": "ping"}},
			},
		},
		model.Response{Text: "done"},
	)

	h := New(m, tool.NewRegistry(echoTool()))

	_, err := h.Run(context.Background(), testAgent(program.RunToCompletion("work")))
	require.NoError(t, err)

	// The assistant commentary accompanying the calls survives into the
	// next turn's context.
	var found bool
	for _, msg := range m.lastRequest().Messages {
		if len(msg.ToolCalls) > 0 {
			assert.Equal(t, "let me check that", msg.Text)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunToolCallDirective(t *testing.T) {
	m := model.NewMockModel("mock")

	h := New(m, tool.NewRegistry(echoTool()))

	var got *core.ToolResult
	interp := program.New(
		program.ToolThen("echo", map[string]any{"value": "pong"}, false, "r",
			func(s *program.State, last program.Result) (core.Directive, program.StepFunc, error) {
				got = last.ToolResult
				return core.SetOutputDirective{Value: "finished"}, nil, nil
			},
		),
		program.NewState("", nil),
	)

	out, err := h.Run(context.Background(), testAgent(interp))
	require.NoError(t, err)
	assert.Equal(t, "finished", out)

	require.NotNil(t, got)
	text, ok := got.Output.(core.TextOutput)
	require.True(t, ok)
	assert.Equal(t, "pong", text.Text)
}

func TestRunGenerateNUsesController(t *testing.T) {
	gen := model.NewMockModel("gen")
	gen.AddResponse("think hard", "<thinking>best answer</thinking>")

	sel := model.NewMockModel("sel")
	sel.Enqueue(model.Response{Text: `{"value":{"thoughtId":"A"}}`})

	controller := fanout.New(fanout.NewModelGenerator(gen), fanout.NewModelSelector(sel))

	h := New(gen, tool.NewRegistry(), func(o *Options) { o.Controller = controller })

	out, err := h.Run(context.Background(), testAgent(program.BestOfN("think hard", 1)))
	require.NoError(t, err)
	assert.Equal(t, "best answer", out)
}

func TestRunGenerateNDefaultsToConfiguredSlots(t *testing.T) {
	gen := newCapturingModel()
	gen.AddResponse("think hard", "<thinking>answer</thinking>")

	sel := model.NewMockModel("sel")
	sel.Enqueue(model.Response{Text: `{"value":{"thoughtId":"A"}}`})

	controller := fanout.New(fanout.NewModelGenerator(gen), fanout.NewModelSelector(sel))

	h := New(gen, tool.NewRegistry(), func(o *Options) {
		o.Controller = controller
		o.FanoutSlots = 2
	})

	// A GenerateN directive without its own count uses the host setting.
	out, err := h.Run(context.Background(), testAgent(program.BestOfN("think hard", 0)))
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 2, gen.Calls())
}

func TestRunSetOutputValueSerialization(t *testing.T) {
	h := New(model.NewMockModel("mock"), tool.NewRegistry())

	interp := program.FromDirectives(core.SetOutputDirective{Value: map[string]any{"answer": 42}})

	out, err := h.Run(context.Background(), testAgent(interp))
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":42}`, out)
}

func TestRunCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(model.NewMockModel("mock"), tool.NewRegistry())

	_, err := h.Run(ctx, testAgent(program.SingleTurn("hello")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunDrainsInboxIntoContext(t *testing.T) {
	manager := team.NewManager(team.NewInMemoryStore())
	_, err := manager.CreateTeam("lead-1", "lead", "alpha", "", "lead", "")
	require.NoError(t, err)
	_, err = manager.AddMember(team.Member{AgentID: "agent-1", Name: "worker", Role: "member"})
	require.NoError(t, err)

	require.NoError(t, manager.Deliver("agent-1", protocol.Chat{
		Header:  protocol.NewHeader("lead-1"),
		To:      "agent-1",
		Content: "please start with task 2",
	}))

	m := newCapturingModel()
	m.Enqueue(model.Response{Text: "on it"})

	h := New(m, tool.NewRegistry(), func(o *Options) { o.Manager = manager })

	out, err := h.Run(context.Background(), testAgent(program.SingleTurn("go")))
	require.NoError(t, err)
	assert.Equal(t, "on it", out)

	req := m.lastRequest()
	require.NotEmpty(t, req.Messages)

	var injected string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			injected += msg.Text + "\n"
		}
	}
	assert.Contains(t, injected, "1 new message")
	assert.Contains(t, injected, "please start with task 2")

	// Inbox is drained: nothing remains for a second run.
	msgs, err := manager.DrainInbox("agent-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRunAllParallelAgents(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("a", "out-a")
	m.AddResponse("b", "out-b")

	h := New(m, tool.NewRegistry())

	agents := []*Agent{
		{Info: core.AgentInfo{ID: "a1"}, Interpreter: program.SingleTurn("a")},
		{Info: core.AgentInfo{ID: "a2"}, Interpreter: program.SingleTurn("b")},
	}

	outputs, err := h.RunAll(context.Background(), agents)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a1": "out-a", "a2": "out-b"}, outputs)
}

func TestRunAllFirstErrorCancels(t *testing.T) {
	m := model.NewMockModel("mock")

	h := New(m, tool.NewRegistry())

	failing := program.New(func(_ *program.State, _ program.Result) (core.Directive, program.StepFunc, error) {
		return nil, nil, assert.AnError
	}, nil)

	agents := []*Agent{
		{Info: core.AgentInfo{ID: "bad"}, Interpreter: failing},
		{Info: core.AgentInfo{ID: "ok"}, Interpreter: program.SingleTurn("hello")},
	}

	_, err := h.RunAll(context.Background(), agents)
	require.Error(t, err)
}
