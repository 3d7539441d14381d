package program

import "github.com/hupe1980/agentcrew/core"

// SingleTurn yields one model turn and sets its text as the run output.
func SingleTurn(prompt string) *Interpreter {
	var first StepFunc
	first = func(s *State, _ Result) (core.Directive, StepFunc, error) {
		return core.StepDirective{}, func(s *State, last Result) (core.Directive, StepFunc, error) {
			return core.SetOutputDirective{Value: last.Text}, nil, nil
		}, nil
	}
	return New(first, NewState(prompt, nil))
}

// RunToCompletion yields all remaining model turns and sets the final turn's
// text as the run output.
func RunToCompletion(prompt string) *Interpreter {
	first := func(s *State, _ Result) (core.Directive, StepFunc, error) {
		return core.StepAllDirective{}, func(s *State, last Result) (core.Directive, StepFunc, error) {
			return core.SetOutputDirective{Value: last.Text}, nil, nil
		}, nil
	}
	return New(first, NewState(prompt, nil))
}

// BestOfN yields a fan-out of n parallel generations and sets the arbitrated
// result as the run output. The host clamps n; selection failures surface as
// plain failure text, not as program errors.
func BestOfN(prompt string, n int) *Interpreter {
	first := func(s *State, _ Result) (core.Directive, StepFunc, error) {
		return core.GenerateNDirective{N: n}, func(s *State, last Result) (core.Directive, StepFunc, error) {
			return core.SetOutputDirective{Value: last.Text}, nil, nil
		}, nil
	}
	st := NewState(prompt, map[string]any{"n": n})
	return New(first, st)
}

// ToolThen yields a single tool call, stores its result under resultVar in
// program state, then continues with then. Useful for programs that must set
// up shared state (create a team, claim a task) before their model turns.
func ToolThen(toolName string, input map[string]any, include bool, resultVar string, then StepFunc) StepFunc {
	return func(s *State, _ Result) (core.Directive, StepFunc, error) {
		d := core.ToolCallDirective{ToolName: toolName, Input: input, IncludeToolCall: include}
		return d, func(s *State, last Result) (core.Directive, StepFunc, error) {
			if resultVar != "" && last.ToolResult != nil {
				s.Vars[resultVar] = *last.ToolResult
			}
			return then(s, last)
		}, nil
	}
}

// FromDirectives yields the given directives in order and then finishes.
// Results are discarded. Intended for tests and replay tooling.
func FromDirectives(ds ...core.Directive) *Interpreter {
	var step func(i int) StepFunc
	step = func(i int) StepFunc {
		return func(s *State, _ Result) (core.Directive, StepFunc, error) {
			if i >= len(ds) {
				return nil, nil, nil
			}
			return ds[i], step(i + 1), nil
		}
	}
	return New(step(0), nil)
}
