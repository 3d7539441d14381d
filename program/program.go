// Package program implements the resumable step program interpreter. A step
// program is an explicit state machine over (agent state, prompt, params)
// that yields one Directive per resumption and pauses until the host supplies
// that directive's result. Programs are lazy, finite and non-restartable:
// once a program finishes or fails it can never yield again.
package program

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentcrew/core"
)

// ErrDone is returned by Resume after the program has finished.
var ErrDone = errors.New("step program finished")

// Result carries the host-supplied outcome of the previously yielded
// directive back into the program on the next resumption.
type Result struct {
	// Text is the model turn output (Step/StepAll) or the fan-out
	// controller's output (GenerateN).
	Text string
	// ToolResult answers a ToolCallDirective.
	ToolResult *core.ToolResult
}

// State is the mutable program-owned state threaded through step functions.
type State struct {
	Prompt string
	Params map[string]any
	// Vars is program-local scratch space surviving across suspensions.
	Vars map[string]any
}

// NewState constructs a State with initialized scratch space.
func NewState(prompt string, params map[string]any) *State {
	if params == nil {
		params = map[string]any{}
	}
	return &State{Prompt: prompt, Params: params, Vars: map[string]any{}}
}

// StepFunc advances the program by one suspension point. It receives the
// result of the previously yielded directive and returns the next directive
// plus the continuation to run after that directive resolves.
//
// Returning a nil directive finishes the program. Returning a non-nil
// directive with a nil continuation yields that final directive and finishes
// without observing its result (the usual shape for SetOutput). A returned
// error terminates the run; there is no retry at this layer.
type StepFunc func(s *State, last Result) (core.Directive, StepFunc, error)

// Interpreter drives one step program for one running agent. It is owned
// exclusively by that agent instance and is not safe for concurrent use:
// exactly one directive is in flight at a time.
type Interpreter struct {
	state   *State
	next    StepFunc
	started bool
	done    bool
	failed  error
}

// New constructs an interpreter positioned before the program's first
// suspension point.
func New(first StepFunc, state *State) *Interpreter {
	if state == nil {
		state = NewState("", nil)
	}
	return &Interpreter{state: state, next: first}
}

// State exposes the program state, primarily for canned program constructors
// and tests.
func (in *Interpreter) State() *State { return in.state }

// Done reports whether the program has finished (successfully or not).
func (in *Interpreter) Done() bool { return in.done || in.failed != nil }

// Err returns the terminal error if the program failed.
func (in *Interpreter) Err() error { return in.failed }

// Resume supplies the previous directive's result and advances the program
// to its next suspension point. The first call must pass a zero Result.
//
// Returns (directive, true, nil) when the program yielded more work,
// (nil, false, nil) when it finished cleanly, and a non-nil error when the
// program failed or was resumed after completion.
func (in *Interpreter) Resume(last Result) (core.Directive, bool, error) {
	if in.failed != nil {
		return nil, false, fmt.Errorf("resume after failure: %w", in.failed)
	}
	if in.done {
		return nil, false, ErrDone
	}
	in.started = true

	d, next, err := in.next(in.state, last)
	if err != nil {
		in.failed = err
		return nil, false, err
	}
	if d == nil {
		in.done = true
		return nil, false, nil
	}
	in.next = next
	if next == nil {
		// Final directive: nothing will observe its result.
		in.done = true
	}
	return d, true, nil
}
