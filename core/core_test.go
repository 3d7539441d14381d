package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateID(t *testing.T) {
	assert.Equal(t, "A", CandidateID(0))
	assert.Equal(t, "B", CandidateID(1))
	assert.Equal(t, "Z", CandidateID(25))

	assert.Panics(t, func() { CandidateID(-1) })
	assert.Panics(t, func() { CandidateID(MaxCandidates) })
}

func TestMessageHelpers(t *testing.T) {
	assert.Equal(t, Message{Role: "user", Text: "hi"}, NewUserMessage("hi"))
	assert.Equal(t, Message{Role: "assistant", Text: "hello"}, NewAssistantMessage("hello"))

	callMsg := NewToolCallMessage("checking the board",
		ToolCall{ID: "c1", Name: "task_list"},
		ToolCall{ID: "c2", Name: "task_get"},
	)
	assert.Equal(t, "assistant", callMsg.Role)
	assert.Equal(t, "checking the board", callMsg.Text)
	assert.Equal(t, []string{"c1", "c2"}, callMsg.CalledIDs())

	resultMsg := NewToolResultMessage(
		ToolResult{CallID: "c2", Output: TextOutput{Text: "late"}},
		ToolResult{CallID: "c1", Output: TextOutput{Text: "early"}},
	)
	assert.Equal(t, "tool", resultMsg.Role)
	assert.Equal(t, []string{"c2", "c1"}, resultMsg.ResultIDs())

	assert.Empty(t, NewUserMessage("no calls").CalledIDs())
	assert.Empty(t, NewUserMessage("no results").ResultIDs())
}

func TestModelLimiter(t *testing.T) {
	ml := NewModelLimiter(2)
	require.NoError(t, ml.Increment())
	require.NoError(t, ml.Increment())
	assert.Equal(t, 2, ml.Count())
	assert.Equal(t, 0, ml.Remaining())

	err := ml.Increment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded max model calls: 2")
}

func TestModelLimiterUnlimited(t *testing.T) {
	ml := NewModelLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, ml.Increment())
	}
	assert.Equal(t, -1, ml.Remaining())
}

type captureLogger struct {
	msgs []string
	args [][]any
}

func (c *captureLogger) record(msg string, args []any) {
	c.msgs = append(c.msgs, msg)
	c.args = append(c.args, args)
}

func (c *captureLogger) Debug(msg string, args ...any) { c.record(msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record(msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record(msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.record(msg, args) }

func TestRunContextScopedLogging(t *testing.T) {
	capture := &captureLogger{}
	runCtx := NewRunContext(context.Background(), "run-1",
		AgentInfo{ID: "agent-1", Name: "worker", Type: "test"}, 0, capture)

	runCtx.LogInfo("host.turn", "turn", 1)

	require.Len(t, capture.msgs, 1)
	assert.Equal(t, "host.turn", capture.msgs[0])
	assert.Equal(t, []any{"turn", 1, "run_id", "run-1", "agent", "agent-1"}, capture.args[0])
}

func TestToolContextScopedLogging(t *testing.T) {
	capture := &captureLogger{}
	runCtx := NewRunContext(context.Background(), "run-1",
		AgentInfo{ID: "agent-1", Name: "worker", Type: "test"}, 0, capture)
	toolCtx := NewToolContext(runCtx, "call-7")

	toolCtx.Logger().Warn("tool.call.validation_failed", "tool", "task_get")

	require.Len(t, capture.msgs, 1)
	assert.Equal(t, []any{
		"tool", "task_get",
		"tool_call_id", "call-7",
		"run_id", "run-1", "agent", "agent-1",
	}, capture.args[0])
}

func TestRunContextNilLoggerSafe(t *testing.T) {
	runCtx := NewRunContext(context.Background(), "run-1", AgentInfo{ID: "a"}, 0, nil)
	runCtx.LogDebug("noop")
	runCtx.LogError("noop")
}
