// Package sequencer dispatches batches of tool calls with ordered commits.
//
// Calls declared in one batch are staged concurrently but their effects on
// shared state commit strictly in declaration order. Tools that implement
// tool.PathAddressed additionally serialize on a per-path queue that is
// shared across batches, so two agents editing the same path never
// interleave while edits to distinct paths proceed independently.
package sequencer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/tool"
)

// Stager is an optional tool capability. A staged tool splits its work into
// a concurrent, side-effect-free preparation step and a Commit closure that
// applies the mutation atomically with producing the result. Tools that do
// not implement Stager run entirely in the commit phase.
type Stager interface {
	Stage(toolCtx *core.ToolContext, args map[string]any) (Commit, error)
}

// Commit applies a staged mutation and returns its result. The mutation and
// the returned value must be atomic: a failed commit leaves no partial
// shared state behind.
type Commit func() (any, error)

// Options configures a Sequencer.
type Options struct {
	Logger logging.Logger
}

// Sequencer executes tool call batches against a registry. It is safe for
// concurrent use by multiple agents; the per-path queues it maintains are
// the cross-agent serialization point.
type Sequencer struct {
	registry *tool.Registry
	logger   logging.Logger

	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

// New creates a Sequencer over the given tool registry.
func New(registry *tool.Registry, optFns ...func(o *Options)) *Sequencer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Sequencer{
		registry: registry,
		logger:   opts.Logger,
		paths:    make(map[string]*sync.Mutex),
	}
}

// staged is one call of a batch after the stage phase.
type staged struct {
	call   core.ToolCall
	commit Commit
	// path is non-empty when the tool addresses a shared path
	path string
	// err holds a stage failure; the call is skipped at commit time
	err error
}

// Execute runs one batch of tool calls and returns exactly one ToolResult
// per call, in declaration order. Per-call failures are reported as error
// outputs inside the results; the returned error is reserved for fatal
// conditions such as context cancellation, which abort the remainder of the
// batch.
func (s *Sequencer) Execute(runCtx *core.RunContext, calls []core.ToolCall) ([]core.ToolResult, error) {
	stagedCalls := make([]staged, len(calls))

	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)

		go func(i int, call core.ToolCall) {
			defer wg.Done()
			stagedCalls[i] = s.stage(runCtx, call)
		}(i, call)
	}

	wg.Wait()

	results := make([]core.ToolResult, 0, len(calls))

	for _, sc := range stagedCalls {
		if err := runCtx.Err(); err != nil {
			return results, err
		}

		results = append(results, s.commit(runCtx, sc))
	}

	return results, nil
}

// stage resolves the tool and runs its preparation step. Plain tools defer
// all work to the commit phase so their side effects stay ordered.
func (s *Sequencer) stage(runCtx *core.RunContext, call core.ToolCall) staged {
	sc := staged{call: call}

	t, ok := s.registry.Get(call.Name)
	if !ok {
		sc.err = fmt.Errorf("unknown tool %q", call.Name)
		return sc
	}

	if pa, ok := t.(tool.PathAddressed); ok {
		sc.path = pa.Path(call.Input)
	}

	toolCtx := core.NewToolContext(runCtx, call.ID)

	if st, ok := t.(Stager); ok {
		commit, err := st.Stage(toolCtx, call.Input)
		if err != nil {
			sc.err = err
			return sc
		}

		sc.commit = commit

		return sc
	}

	sc.commit = func() (any, error) {
		return t.Call(toolCtx, call.Input)
	}

	return sc
}

// commit applies one staged call under its path queue (when addressed) and
// converts the outcome into a ToolResult.
func (s *Sequencer) commit(runCtx *core.RunContext, sc staged) core.ToolResult {
	if sc.err != nil {
		s.logger.Warn("tool.stage.failed", "tool", sc.call.Name, "tool_call_id", sc.call.ID, "error", sc.err.Error())

		return errorResult(sc.call.ID, sc.err)
	}

	if sc.path != "" {
		pq := s.pathQueue(sc.path)
		pq.Lock()
		defer pq.Unlock()
	}

	value, err := sc.commit()
	if err != nil {
		s.logger.Warn("tool.commit.failed", "tool", sc.call.Name, "tool_call_id", sc.call.ID, "error", err.Error())

		return errorResult(sc.call.ID, err)
	}

	s.logger.Debug("tool.commit", "tool", sc.call.Name, "tool_call_id", sc.call.ID)

	return core.ToolResult{CallID: sc.call.ID, Output: toOutput(value)}
}

// pathQueue returns the queue mutex for a path, creating it on first use.
// Queues live for the lifetime of the Sequencer so ordering holds across
// batches.
func (s *Sequencer) pathQueue(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	pq, ok := s.paths[path]
	if !ok {
		pq = &sync.Mutex{}
		s.paths[path] = pq
	}

	return pq
}

// errorResult wraps a handler failure as an error-tagged output. Tool
// errors never cross the boundary as raw failures.
func errorResult(callID string, err error) core.ToolResult {
	msg := err.Error()
	if toolErr, ok := err.(*tool.ToolError); ok {
		msg = toolErr.Message
	}

	return core.ToolResult{CallID: callID, Output: core.ErrorOutput{Message: msg}}
}

// toOutput tags a handler return value. Strings become text outputs; every
// other JSON-serializable value becomes a json output. Values that cannot
// be serialized are reported as errors rather than dropped.
func toOutput(value any) core.Output {
	switch v := value.(type) {
	case nil:
		return core.TextOutput{Text: ""}
	case string:
		return core.TextOutput{Text: v}
	default:
		if _, err := json.Marshal(v); err != nil {
			return core.ErrorOutput{Message: fmt.Sprintf("tool result not serializable: %v", err)}
		}

		return core.JSONOutput{Value: v}
	}
}
