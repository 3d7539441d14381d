package core

import (
	"context"

	"github.com/hupe1980/agentcrew/logging"
)

// ToolContext provides a constrained, auditable surface for tool handlers
// invoked through the sequencer. It is bound to a parent RunContext and the
// tool call id being served, so handlers can correlate logs and route
// protocol messages on behalf of the calling agent.
type ToolContext struct {
	runCtx     *RunContext
	toolCallID string

	*runLogger
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// unique tool call id. The tool call id joins the parent's log scope.
func NewToolContext(runCtx *RunContext, toolCallID string) *ToolContext {
	return &ToolContext{
		runCtx:     runCtx,
		toolCallID: toolCallID,
		runLogger:  newRunLogger(runCtx.Logger(), "tool_call_id", toolCallID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run id associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// ToolCallID returns the id of the tool call being served.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }

// AgentID returns the calling agent's stable identifier.
func (tc *ToolContext) AgentID() string { return tc.runCtx.Agent.ID }

// AgentName returns the calling agent's name.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }

// AgentType returns the calling agent's implementation category.
func (tc *ToolContext) AgentType() string { return tc.runCtx.Agent.Type }

// Logger returns the scoped logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.runLogger.Logger() }
