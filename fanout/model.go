package fanout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/model"
)

// ModelGenerator produces candidates by running one model turn per slot.
type ModelGenerator struct {
	model        model.Model
	instructions string
}

// ModelGeneratorOptions configures a ModelGenerator.
type ModelGeneratorOptions struct {
	Instructions string
}

// NewModelGenerator wraps a model collaborator as a generation slot source.
func NewModelGenerator(m model.Model, optFns ...func(o *ModelGeneratorOptions)) *ModelGenerator {
	opts := ModelGeneratorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelGenerator{model: m, instructions: opts.Instructions}
}

// Generate implements Generator with a single model turn.
func (g *ModelGenerator) Generate(runCtx *core.RunContext, prompt string) (string, error) {
	if err := runCtx.Limiter.Increment(); err != nil {
		return "", err
	}

	resp, err := g.model.Generate(runCtx.Context, model.Request{
		Instructions: g.instructions,
		Messages:     []core.Message{core.NewUserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}

	return resp.Text, nil
}

// ModelSelector runs the single selector sub-agent: one model turn over the
// structured candidates, decoded into the selection result shape.
type ModelSelector struct {
	model        model.Model
	instructions string
}

// ModelSelectorOptions configures a ModelSelector.
type ModelSelectorOptions struct {
	Instructions string
}

// NewModelSelector wraps a model collaborator as the selection arbiter.
func NewModelSelector(m model.Model, optFns ...func(o *ModelSelectorOptions)) *ModelSelector {
	opts := ModelSelectorOptions{
		Instructions: "You are choosing the best response among candidates. " +
			"Reply with JSON of the form {\"value\":{\"thoughtId\":\"<id>\"}} naming the best candidate, " +
			"or {\"errorMessage\":\"<reason>\"} if none qualifies.",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelSelector{model: m, instructions: opts.Instructions}
}

// Select implements Selector. The candidates travel as a JSON array so the
// sub-agent sees ids and content in one structured block; the reply is
// decoded and handed back raw for the controller to unwrap.
func (s *ModelSelector) Select(runCtx *core.RunContext, prompt string, candidates []core.Candidate) (any, error) {
	if err := runCtx.Limiter.Increment(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}

	input := fmt.Sprintf("Task:\n%s\n\nCandidates:\n%s", prompt, encoded)

	resp, err := s.model.Generate(runCtx.Context, model.Request{
		Instructions: s.instructions,
		Messages:     []core.Message{core.NewUserMessage(input)},
	})
	if err != nil {
		return nil, err
	}

	return decodeSelection(resp.Text), nil
}

// decodeSelection parses the selector reply. Models often wrap the JSON in
// prose, so after a direct parse fails the outermost braced span is tried.
// Undecodable replies come back as the raw text, which the controller
// treats as an unusable shape.
func decodeSelection(text string) any {
	trimmed := strings.TrimSpace(text)

	var result any
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return result
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &result); err == nil {
			return result
		}
	}

	return trimmed
}
