package program

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
)

func TestResumeYieldsDirectivesInOrder(t *testing.T) {
	interp := FromDirectives(
		core.StepDirective{},
		core.ToolCallDirective{ToolName: "echo"},
		core.GenerateNDirective{N: 2},
	)

	d, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.IsType(t, core.StepDirective{}, d)

	d, more, err = interp.Resume(Result{Text: "turn output"})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.ToolCallDirective{ToolName: "echo"}, d)

	d, more, err = interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.GenerateNDirective{N: 2}, d)

	_, more, err = interp.Resume(Result{})
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, interp.Done())
}

func TestResumeAfterCompletionIsError(t *testing.T) {
	interp := FromDirectives(core.StepDirective{})

	_, _, err := interp.Resume(Result{})
	require.NoError(t, err)
	_, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.False(t, more)

	_, _, err = interp.Resume(Result{})
	require.ErrorIs(t, err, ErrDone)
}

func TestResumeAfterFailureIsError(t *testing.T) {
	boom := fmt.Errorf("program exploded")

	interp := New(func(_ *State, _ Result) (core.Directive, StepFunc, error) {
		return nil, nil, boom
	}, nil)

	_, _, err := interp.Resume(Result{})
	require.ErrorIs(t, err, boom)
	assert.True(t, interp.Done())
	assert.ErrorIs(t, interp.Err(), boom)

	_, _, err = interp.Resume(Result{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestFinalDirectiveWithNilContinuationFinishes(t *testing.T) {
	interp := New(func(_ *State, _ Result) (core.Directive, StepFunc, error) {
		return core.SetOutputDirective{Value: "done"}, nil, nil
	}, nil)

	d, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.SetOutputDirective{Value: "done"}, d)
	assert.True(t, interp.Done())
}

func TestResultsThreadThroughState(t *testing.T) {
	interp := New(
		ToolThen("lookup", map[string]any{"id": "7"}, false, "lookup",
			func(s *State, last Result) (core.Directive, StepFunc, error) {
				stored, ok := s.Vars["lookup"].(core.ToolResult)
				if !ok {
					return nil, nil, fmt.Errorf("missing stored result")
				}
				return core.SetOutputDirective{Value: stored.OutputText()}, nil, nil
			},
		),
		NewState("prompt", nil),
	)

	d, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, "lookup", d.(core.ToolCallDirective).ToolName)

	result := core.ToolResult{CallID: "c1", Output: core.TextOutput{Text: "record 7"}}
	d, more, err = interp.Resume(Result{ToolResult: &result})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.SetOutputDirective{Value: "record 7"}, d)
}

func TestSingleTurnShape(t *testing.T) {
	interp := SingleTurn("say hi")
	assert.Equal(t, "say hi", interp.State().Prompt)

	d, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.IsType(t, core.StepDirective{}, d)

	d, more, err = interp.Resume(Result{Text: "hi"})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.SetOutputDirective{Value: "hi"}, d)
	assert.True(t, interp.Done())
}

func TestBestOfNShape(t *testing.T) {
	interp := BestOfN("solve it", 5)

	d, more, err := interp.Resume(Result{})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.GenerateNDirective{N: 5}, d)

	d, more, err = interp.Resume(Result{Text: "winner"})
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, core.SetOutputDirective{Value: "winner"}, d)
}
