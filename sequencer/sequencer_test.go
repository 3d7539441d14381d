package sequencer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/tool"
)

// recorder collects commit side effects so tests can assert ordering.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// plainTool is a minimal Tool whose whole body runs at commit time.
type plainTool struct {
	name string
	fn   func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

func (t *plainTool) Name() string                { return t.name }
func (t *plainTool) Description() string         { return "test tool" }
func (t *plainTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (t *plainTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	return t.fn(tc, args)
}

// pathTool is a plainTool addressed by the "path" argument.
type pathTool struct {
	plainTool
}

func (t *pathTool) Path(args map[string]any) string {
	p, _ := args["path"].(string)
	return p
}

// stagedTool splits work into a stage step and a commit closure.
type stagedTool struct {
	plainTool
	rec *recorder
}

func (t *stagedTool) Stage(tc *core.ToolContext, args map[string]any) (Commit, error) {
	label, _ := args["label"].(string)
	t.rec.record("stage:" + label)

	return func() (any, error) {
		t.rec.record("commit:" + label)
		return label, nil
	}, nil
}

func newRunContext(ctx context.Context) *core.RunContext {
	agent := core.AgentInfo{ID: "agent-1", Name: "worker", Type: "worker"}
	return core.NewRunContext(ctx, "run-1", agent, 0, logging.NoOpLogger{})
}

func TestExecuteCommitsInDeclarationOrder(t *testing.T) {
	rec := &recorder{}

	slow := &plainTool{name: "slow", fn: func(_ *core.ToolContext, _ map[string]any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		rec.record("slow")
		return "slow done", nil
	}}
	fast := &plainTool{name: "fast", fn: func(_ *core.ToolContext, _ map[string]any) (any, error) {
		rec.record("fast")
		return "fast done", nil
	}}

	seq := New(tool.NewRegistry(slow, fast))

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "slow"},
		{ID: "c2", Name: "fast"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, []string{"slow", "fast"}, rec.snapshot())
}

func TestExecuteStagesConcurrentlyCommitsSequentially(t *testing.T) {
	rec := &recorder{}
	st := &stagedTool{plainTool: plainTool{name: "staged"}, rec: rec}

	seq := New(tool.NewRegistry(st))

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "staged", Input: map[string]any{"label": "a"}},
		{ID: "c2", Name: "staged", Input: map[string]any{"label": "b"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	events := rec.snapshot()
	require.Len(t, events, 4)

	// Both stages finish before the first commit; commits follow declaration order.
	assert.Contains(t, events[:2], "stage:a")
	assert.Contains(t, events[:2], "stage:b")
	assert.Equal(t, []string{"commit:a", "commit:b"}, events[2:])
}

func TestExecuteUnknownTool(t *testing.T) {
	seq := New(tool.NewRegistry())

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "nope"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	out, ok := results[0].Output.(core.ErrorOutput)
	require.True(t, ok)
	assert.Contains(t, out.Message, `unknown tool "nope"`)
}

func TestExecuteHandlerErrorBecomesErrorOutput(t *testing.T) {
	boom := &plainTool{name: "boom", fn: func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("disk full")
	}}

	seq := New(tool.NewRegistry(boom))

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "boom"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	out, ok := results[0].Output.(core.ErrorOutput)
	require.True(t, ok)
	assert.Equal(t, "disk full", out.Message)
}

func TestExecuteToolErrorMessageSurvives(t *testing.T) {
	boom := &plainTool{name: "boom", fn: func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, &tool.ToolError{Tool: "boom", Message: "bad input", Code: "VALIDATION_ERROR"}
	}}

	seq := New(tool.NewRegistry(boom))

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "boom"},
	})
	require.NoError(t, err)

	out, ok := results[0].Output.(core.ErrorOutput)
	require.True(t, ok)
	assert.Equal(t, "bad input", out.Message)
}

func TestExecuteOutputTagging(t *testing.T) {
	echo := &plainTool{name: "echo", fn: func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["value"], nil
	}}

	seq := New(tool.NewRegistry(echo))

	results, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
		{ID: "c1", Name: "echo", Input: map[string]any{"value": "hello"}},
		{ID: "c2", Name: "echo", Input: map[string]any{"value": map[string]any{"count": 3}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	text, ok := results[0].Output.(core.TextOutput)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)

	jsonOut, ok := results[1].Output.(core.JSONOutput)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"count": 3}, jsonOut.Value)
}

func TestExecuteSamePathSerializesAcrossBatches(t *testing.T) {
	rec := &recorder{}

	write := &pathTool{plainTool: plainTool{name: "write", fn: func(_ *core.ToolContext, args map[string]any) (any, error) {
		label, _ := args["label"].(string)
		rec.record("start:" + label)
		time.Sleep(10 * time.Millisecond)
		rec.record("end:" + label)
		return "ok", nil
	}}}

	seq := New(tool.NewRegistry(write))

	var wg sync.WaitGroup
	for _, label := range []string{"a", "b"} {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			_, err := seq.Execute(newRunContext(context.Background()), []core.ToolCall{
				{ID: "c-" + label, Name: "write", Input: map[string]any{"path": "main.go", "label": label}},
			})
			assert.NoError(t, err)
		}(label)
	}
	wg.Wait()

	// Each write's start/end pair is contiguous: no interleaving on one path.
	events := rec.snapshot()
	require.Len(t, events, 4)

	first := events[0][len("start:"):]
	second := events[2][len("start:"):]
	assert.Equal(t, []string{"start:" + first, "end:" + first, "start:" + second, "end:" + second}, events)
}

func TestExecuteCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	echo := &plainTool{name: "echo", fn: func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return "ok", nil
	}}

	seq := New(tool.NewRegistry(echo))

	_, err := seq.Execute(newRunContext(ctx), []core.ToolCall{
		{ID: "c1", Name: "echo"},
	})
	require.ErrorIs(t, err, context.Canceled)
}
