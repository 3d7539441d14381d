// Package host runs step programs. The host owns everything a program's
// directives need resolved: model turns, sequenced tool call batches,
// best-of-N fan-outs, inbox delivery and context pruning. One interpreter
// serves one running agent, strictly sequentially; many agents may run in
// parallel through RunAll.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/fanout"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/program"
	"github.com/hupe1980/agentcrew/protocol"
	"github.com/hupe1980/agentcrew/prune"
	"github.com/hupe1980/agentcrew/sequencer"
	"github.com/hupe1980/agentcrew/team"
	"github.com/hupe1980/agentcrew/tool"
)

// Agent pairs an identity with the interpreter driving it and optional
// per-agent system instructions. Instructions may contain Go template
// markers ({{.key}}) resolved against the program's Params on every turn.
type Agent struct {
	Info         core.AgentInfo
	Interpreter  *program.Interpreter
	Instructions string
}

// Options configures a Host.
type Options struct {
	Logger        logging.Logger
	Manager       *team.Manager
	Controller    *fanout.Controller
	Pruner        prune.Pruner
	Estimator     prune.TokenEstimator
	TokenBudget   int
	MaxModelCalls int
	// MaxTurns bounds a single StepAll loop against runaway tool chatter.
	MaxTurns int
	// FanoutSlots is the candidate count for GenerateN directives that do
	// not name one themselves. 0 falls back to the controller default.
	FanoutSlots int
}

// Host executes agents. It is safe for concurrent use; the per-path tool
// queues inside the shared sequencer are the only cross-agent coupling.
type Host struct {
	model       model.Model
	registry    *tool.Registry
	sequencer   *sequencer.Sequencer
	controller  *fanout.Controller
	manager     *team.Manager
	formatter   *protocol.Formatter
	pruner      prune.Pruner
	estimate    prune.TokenEstimator
	tokenBudget int
	maxCalls    int
	maxTurns    int
	fanoutSlots int
	logger      logging.Logger
}

// New creates a Host over a model collaborator and a tool registry. The
// fan-out controller defaults to model-backed generation and selection; the
// pruner defaults to oldest-first eviction.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Host {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		Pruner:      prune.NewOldestFirst(),
		Estimator:   prune.EstimateTokens,
		TokenBudget: 64000,
		MaxTurns:    50,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	controller := opts.Controller
	if controller == nil {
		controller = fanout.New(
			fanout.NewModelGenerator(m),
			fanout.NewModelSelector(m),
			func(o *fanout.Options) { o.Logger = opts.Logger },
		)
	}

	return &Host{
		model:       m,
		registry:    registry,
		sequencer:   sequencer.New(registry, func(o *sequencer.Options) { o.Logger = opts.Logger }),
		controller:  controller,
		manager:     opts.Manager,
		formatter:   protocol.NewFormatter(),
		pruner:      opts.Pruner,
		estimate:    opts.Estimator,
		tokenBudget: opts.TokenBudget,
		maxCalls:    opts.MaxModelCalls,
		maxTurns:    opts.MaxTurns,
		fanoutSlots: opts.FanoutSlots,
		logger:      opts.Logger,
	}
}

// Run drives one agent's program to completion and returns the run output.
// Program and cancellation errors terminate the run and propagate; tool
// failures do not, they flow back into the program as error outputs.
func (h *Host) Run(ctx context.Context, agent *Agent) (string, error) {
	runCtx := core.NewRunContext(ctx, uuid.NewString(), agent.Info, h.maxCalls, h.logger)

	runCtx.Logger().Info("host.run.start", "agent", agent.Info.ID)

	var history []core.Message
	if prompt := agent.Interpreter.State().Prompt; prompt != "" {
		history = append(history, core.NewUserMessage(prompt))
	}

	var (
		last   program.Result
		output string
		hasOut bool
	)

	for {
		if err := runCtx.Err(); err != nil {
			return "", err
		}

		h.drainInbox(runCtx, agent, &history)

		directive, more, err := agent.Interpreter.Resume(last)
		if err != nil {
			runCtx.Logger().Error("host.run.failed", "agent", agent.Info.ID, "error", err.Error())
			return "", err
		}
		if !more {
			break
		}

		last = program.Result{}

		switch d := directive.(type) {
		case core.StepDirective:
			resp, err := h.turn(runCtx, agent, &history)
			if err != nil {
				return "", err
			}
			last.Text = resp.Text

		case core.StepAllDirective:
			text, err := h.stepAll(runCtx, agent, &history)
			if err != nil {
				return "", err
			}
			last.Text = text

		case core.ToolCallDirective:
			result, err := h.toolCall(runCtx, d, &history)
			if err != nil {
				return "", err
			}
			last.ToolResult = result

		case core.GenerateNDirective:
			n := d.N
			if n == 0 {
				n = h.fanoutSlots
			}
			text, err := h.controller.Run(runCtx, agent.Interpreter.State().Prompt, n)
			if err != nil {
				return "", err
			}
			last.Text = text

		case core.SetOutputDirective:
			output = outputText(d.Value)
			hasOut = true

		default:
			return "", fmt.Errorf("unhandled directive %T", directive)
		}

		if agent.Interpreter.Done() {
			break
		}
	}

	if !hasOut {
		output = last.Text
	}

	runCtx.Logger().Info("host.run.done", "agent", agent.Info.ID)

	return output, nil
}

// RunAll executes several agents in parallel and returns their outputs
// keyed by agent id. The first error cancels the remaining runs.
func (h *Host) RunAll(ctx context.Context, agents []*Agent) (map[string]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	outputs := make(map[string]string, len(agents))
	errCh := make(chan error, len(agents))

	for _, agent := range agents {
		wg.Add(1)

		go func(agent *Agent) {
			defer wg.Done()

			out, err := h.Run(ctx, agent)
			if err != nil {
				errCh <- fmt.Errorf("agent %s: %w", agent.Info.ID, err)
				cancel()
				return
			}

			mu.Lock()
			outputs[agent.Info.ID] = out
			mu.Unlock()
		}(agent)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return outputs, err
	}

	return outputs, nil
}

// turn performs one model turn: prune over budget, call the model, execute
// any declared tool calls through the sequencer, and fold everything back
// into the history.
func (h *Host) turn(runCtx *core.RunContext, agent *Agent, history *[]core.Message) (*model.Response, error) {
	h.pruneHistory(runCtx, history)

	if err := runCtx.Limiter.Increment(); err != nil {
		return nil, err
	}

	instructions, err := util.RenderTemplate(agent.Instructions, agent.Interpreter.State().Params)
	if err != nil {
		return nil, fmt.Errorf("render instructions: %w", err)
	}

	resp, err := h.model.Generate(runCtx.Context, model.Request{
		Instructions: instructions,
		Messages:     *history,
		Tools:        h.toolDefinitions(),
	})
	if err != nil {
		return nil, err
	}

	runCtx.LogDebug("host.model.turn", "model", h.model.Info().Name, "finish_reason", resp.FinishReason)

	if len(resp.ToolCalls) == 0 {
		if resp.Text != "" {
			*history = append(*history, core.NewAssistantMessage(resp.Text))
		}
		return resp, nil
	}

	*history = append(*history, core.NewToolCallMessage(resp.Text, resp.ToolCalls...))

	results, err := h.sequencer.Execute(runCtx, resp.ToolCalls)
	if err != nil {
		return nil, err
	}

	*history = append(*history, core.NewToolResultMessage(results...))

	return resp, nil
}

// stepAll loops model turns until one produces no tool calls, returning the
// final turn's text.
func (h *Host) stepAll(runCtx *core.RunContext, agent *Agent, history *[]core.Message) (string, error) {
	for i := 0; i < h.maxTurns; i++ {
		resp, err := h.turn(runCtx, agent, history)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}
	}

	return "", fmt.Errorf("step loop exceeded %d turns", h.maxTurns)
}

// toolCall executes one directive-issued tool call. With IncludeToolCall
// set, the call and its result join the agent's context so later model
// turns can observe them.
func (h *Host) toolCall(runCtx *core.RunContext, d core.ToolCallDirective, history *[]core.Message) (*core.ToolResult, error) {
	call := core.ToolCall{
		ID:    uuid.NewString(),
		Name:  d.ToolName,
		Input: d.Input,
	}

	results, err := h.sequencer.Execute(runCtx, []core.ToolCall{call})
	if err != nil {
		return nil, err
	}

	result := results[0]

	if d.IncludeToolCall {
		*history = append(*history, core.NewToolCallMessage("", call), core.NewToolResultMessage(result))
	}

	return &result, nil
}

// drainInbox injects pending protocol messages as a user message ahead of
// the next resumption. Delivery failures are logged, not fatal.
func (h *Host) drainInbox(runCtx *core.RunContext, agent *Agent, history *[]core.Message) {
	if h.manager == nil {
		return
	}

	msgs, err := h.manager.DrainInbox(agent.Info.ID)
	if err != nil {
		runCtx.Logger().Warn("host.inbox.drain.failed", "agent", agent.Info.ID, "error", err.Error())
		return
	}

	text, ok := h.formatter.FormatInbox(msgs)
	if !ok {
		return
	}

	*history = append(*history, core.NewUserMessage(text))
}

// pruneHistory shrinks the context when the estimate exceeds the budget.
func (h *Host) pruneHistory(runCtx *core.RunContext, history *[]core.Message) {
	total := 0
	for _, msg := range *history {
		total += h.estimate(msg)
	}

	if total <= h.tokenBudget {
		return
	}

	before := len(*history)
	*history = h.pruner.Prune(*history, h.tokenBudget)

	runCtx.Logger().Debug("host.context.pruned", "before", before, "after", len(*history))
}

// toolDefinitions renders the registry as model-facing tool declarations.
func (h *Host) toolDefinitions() []model.ToolDefinition {
	if h.registry == nil {
		return nil
	}

	tools := h.registry.All()

	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return defs
}

// outputText renders a SetOutput value: strings pass through, everything
// else serializes to JSON.
func outputText(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(b)
}
