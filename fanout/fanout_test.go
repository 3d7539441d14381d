package fanout

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
	"github.com/hupe1980/agentcrew/model"
)

// scriptedGenerator returns per-slot canned content with optional delays so
// completion order differs from request order.
type scriptedGenerator struct {
	mu      sync.Mutex
	next    int
	content []string
	delays  []time.Duration
	errs    []error
}

func (g *scriptedGenerator) Generate(_ *core.RunContext, _ string) (string, error) {
	g.mu.Lock()
	i := g.next
	g.next++
	g.mu.Unlock()

	if i < len(g.delays) && g.delays[i] > 0 {
		time.Sleep(g.delays[i])
	}
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	return g.content[i%len(g.content)], nil
}

// fixedSelector returns a pre-set decoded result or error.
type fixedSelector struct {
	result any
	err    error

	mu   sync.Mutex
	seen []core.Candidate
}

func (s *fixedSelector) Select(_ *core.RunContext, _ string, candidates []core.Candidate) (any, error) {
	s.mu.Lock()
	s.seen = append([]core.Candidate(nil), candidates...)
	s.mu.Unlock()

	return s.result, s.err
}

func newRunContext(ctx context.Context) *core.RunContext {
	agent := core.AgentInfo{ID: "agent-1", Name: "thinker", Type: "bestofn"}
	return core.NewRunContext(ctx, "run-1", agent, 0, logging.NoOpLogger{})
}

func chosen(id string) map[string]any {
	return map[string]any{"value": map[string]any{"thoughtId": id}}
}

func TestClampN(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "default when absent", in: 0, want: 3},
		{name: "below range", in: -4, want: 1},
		{name: "lower bound", in: 1, want: 1},
		{name: "in range", in: 7, want: 7},
		{name: "upper bound", in: 10, want: 10},
		{name: "above range", in: 50, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampN(tt.in))
		})
	}
}

func TestRunAssignsLetterIDsInRequestOrder(t *testing.T) {
	gen := &scriptedGenerator{
		content: []string{"first", "second", "third"},
		// Uneven delays shuffle completion order; ids still follow request order.
		delays: []time.Duration{30 * time.Millisecond, 0, 10 * time.Millisecond},
	}
	sel := &fixedSelector{result: chosen("A")}

	ctrl := New(gen, sel)

	out, err := ctrl.Run(newRunContext(context.Background()), "prompt", 3)
	require.NoError(t, err)

	require.Len(t, sel.seen, 3)
	assert.Equal(t, "A", sel.seen[0].ID)
	assert.Equal(t, "B", sel.seen[1].ID)
	assert.Equal(t, "C", sel.seen[2].ID)

	contents := []string{sel.seen[0].Content, sel.seen[1].Content, sel.seen[2].Content}
	assert.ElementsMatch(t, []string{"first", "second", "third"}, contents)

	// Selecting A returns the first requested slot's candidate content.
	assert.Equal(t, sel.seen[0].Content, out)
}

func TestRunStripsThinkingDelimiters(t *testing.T) {
	gen := &scriptedGenerator{content: []string{"<thinking>deep thought</thinking>"}}
	sel := &fixedSelector{result: chosen("A")}

	ctrl := New(gen, sel)

	out, err := ctrl.Run(newRunContext(context.Background()), "prompt", 1)
	require.NoError(t, err)
	assert.Equal(t, "deep thought", out)
}

func TestRunSlotFailureDoesNotAbortSiblings(t *testing.T) {
	gen := &scriptedGenerator{
		content: []string{"a", "b", "c"},
		errs:    []error{nil, fmt.Errorf("slot exploded"), nil},
	}
	sel := &fixedSelector{result: chosen("B")}

	ctrl := New(gen, sel)

	out, err := ctrl.Run(newRunContext(context.Background()), "prompt", 3)
	require.NoError(t, err)

	// Surviving slots compact to ids A, B.
	require.Len(t, sel.seen, 2)
	assert.Equal(t, "A", sel.seen[0].ID)
	assert.Equal(t, "B", sel.seen[1].ID)
	assert.Equal(t, sel.seen[1].Content, out)
}

func TestRunInvalidSelection(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{name: "error message shape", result: map[string]any{"errorMessage": "no good candidate"}},
		{name: "absent value", result: map[string]any{}},
		{name: "unknown id", result: chosen("Z")},
		{name: "non object result", result: "pick A"},
		{name: "value missing thoughtId", result: map[string]any{"value": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{content: []string{"only"}}
			sel := &fixedSelector{result: tt.result}

			ctrl := New(gen, sel)

			out, err := ctrl.Run(newRunContext(context.Background()), "prompt", 1)
			require.NoError(t, err)
			assert.Equal(t, FailureText, out)
		})
	}
}

func TestRunSelectorErrorPropagates(t *testing.T) {
	gen := &scriptedGenerator{content: []string{"only"}}
	sel := &fixedSelector{err: context.DeadlineExceeded}

	ctrl := New(gen, sel)

	_, err := ctrl.Run(newRunContext(context.Background()), "prompt", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{content: []string{"only"}}
	sel := &fixedSelector{result: chosen("A")}

	ctrl := New(gen, sel)

	_, err := ctrl.Run(newRunContext(ctx), "prompt", 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunAllSlotsFailed(t *testing.T) {
	gen := &scriptedGenerator{
		content: []string{""},
		errs:    []error{fmt.Errorf("one"), fmt.Errorf("two")},
	}
	sel := &fixedSelector{result: chosen("A")}

	ctrl := New(gen, sel)

	out, err := ctrl.Run(newRunContext(context.Background()), "prompt", 2)
	require.NoError(t, err)
	assert.Equal(t, FailureText, out)
	assert.Empty(t, sel.seen)
}

func TestDecodeSelection(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{
			name: "bare json",
			text: `{"value":{"thoughtId":"B"}}`,
			want: chosen("B"),
		},
		{
			name: "json wrapped in prose",
			text: "The best is B. {\"value\":{\"thoughtId\":\"B\"}} Hope that helps.",
			want: chosen("B"),
		},
		{
			name: "undecodable reply",
			text: "I like candidate B",
			want: "I like candidate B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSelection(tt.text))
		})
	}
}

func TestModelSelectorPassesStructuredCandidates(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(model.Response{Text: `{"value":{"thoughtId":"A"}}`})

	sel := NewModelSelector(m)

	result, err := sel.Select(newRunContext(context.Background()), "prompt", []core.Candidate{
		{ID: "A", Content: "alpha"},
		{ID: "B", Content: "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, chosen("A"), result)
	assert.Equal(t, 1, m.Calls())
}
