package core

import (
	"context"

	"github.com/hupe1980/agentcrew/logging"
)

// AgentInfo carries identifying details about a running agent used in
// contexts, protocol messages and logs.
type AgentInfo struct {
	ID   string // Stable agent identifier (team member agentId)
	Name string // Human-readable name
	Type string // Implementation category (e.g. "worker", "bestofn", "lead")
}

// RunContext carries the per-run execution scope handed to directive
// executors and tool handlers. It aggregates the ambient cancellation
// Context, run/agent identity, the model call limiter and logging helpers.
// One RunContext is owned by exactly one running agent instance and is
// discarded when the run finishes or errors.
type RunContext struct {
	Context context.Context
	RunID   string
	Agent   AgentInfo
	Limiter *ModelLimiter

	*runLogger
}

// NewRunContext constructs a RunContext. maxModelCalls of 0 means unlimited.
// Log entries written through the context carry the run and agent identity.
func NewRunContext(ctx context.Context, runID string, agent AgentInfo, maxModelCalls int, logger logging.Logger) *RunContext {
	return &RunContext{
		Context:   ctx,
		RunID:     runID,
		Agent:     agent,
		Limiter:   NewModelLimiter(maxModelCalls),
		runLogger: newRunLogger(logger, "run_id", runID, "agent", agent.ID),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }
