// Package fanout implements the best-of-N controller: it fans a prompt out
// across parallel generation slots, labels the resulting candidates with
// deterministic letter ids, and delegates the choice among them to a single
// selector sub-agent.
package fanout

import (
	"strings"
	"sync"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
)

// FailureText is the plain text emitted when the selector's choice cannot
// be resolved to a candidate. It is a first-class run outcome, not an
// error; callers must not retry or default to another candidate.
const FailureText = "Failed to find chosen thinking output."

const (
	minSlots     = 1
	maxSlots     = 10
	defaultSlots = 3
)

// Generator produces one candidate's content for a prompt. Implementations
// wrap a model collaborator; errors they return abort only their own slot
// unless they are cancellation errors.
type Generator interface {
	Generate(runCtx *core.RunContext, prompt string) (string, error)
}

// Selector arbitrates among candidates. The returned value is the decoded
// structured result of the selector sub-agent, either {value:{thoughtId}}
// or {errorMessage}; transport and cancellation errors come back as the
// error and propagate to the run's caller.
type Selector interface {
	Select(runCtx *core.RunContext, prompt string, candidates []core.Candidate) (any, error)
}

// Options configures a Controller.
type Options struct {
	Logger logging.Logger
}

// Controller runs the fan-out algorithm. It is stateless and safe for
// concurrent use.
type Controller struct {
	generator Generator
	selector  Selector
	logger    logging.Logger
}

// New creates a Controller over a generator and a selector.
func New(generator Generator, selector Selector, optFns ...func(o *Options)) *Controller {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Controller{
		generator: generator,
		selector:  selector,
		logger:    opts.Logger,
	}
}

// ClampN normalizes a requested slot count: 0 means the default, anything
// outside [1,10] is pulled to the nearest bound.
func ClampN(n int) int {
	switch {
	case n == 0:
		return defaultSlots
	case n < minSlots:
		return minSlots
	case n > maxSlots:
		return maxSlots
	default:
		return n
	}
}

// Run fans the prompt out across ClampN(n) generation slots, joins all of
// them, and returns the selector's chosen candidate content. A slot failure
// drops that slot's candidate without aborting siblings; candidate ids are
// assigned in request order so reruns and logs stay comparable regardless
// of completion order. An unusable selector result yields FailureText as
// the output with a nil error.
func (c *Controller) Run(runCtx *core.RunContext, prompt string, n int) (string, error) {
	slots := ClampN(n)

	contents := make([]string, slots)
	errs := make([]error, slots)

	var wg sync.WaitGroup

	for i := 0; i < slots; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			contents[i], errs[i] = c.generator.Generate(runCtx, prompt)
		}(i)
	}

	wg.Wait()

	if err := runCtx.Err(); err != nil {
		return "", err
	}

	var candidates []core.Candidate

	for i := 0; i < slots; i++ {
		if errs[i] != nil {
			c.logger.Warn("fanout.slot.failed", "slot", i, "error", errs[i].Error())
			continue
		}

		candidates = append(candidates, core.Candidate{
			ID:      core.CandidateID(len(candidates)),
			Content: stripThinking(contents[i]),
		})
	}

	if len(candidates) == 0 {
		c.logger.Warn("fanout.no_candidates", "slots", slots)
		return FailureText, nil
	}

	result, err := c.selector.Select(runCtx, prompt, candidates)
	if err != nil {
		return "", err
	}

	chosenID, ok := unwrapSelection(result)
	if !ok {
		c.logger.Info("fanout.selection.unusable", "result", result)
		return FailureText, nil
	}

	for _, cand := range candidates {
		if cand.ID == chosenID {
			return cand.Content, nil
		}
	}

	c.logger.Info("fanout.selection.no_match", "thought_id", chosenID)

	return FailureText, nil
}

// unwrapSelection extracts the chosen thoughtId from a decoded selector
// result. Accepted shape is {value:{thoughtId}}; {errorMessage} and every
// other shape (including absent value) report as unusable.
func unwrapSelection(result any) (string, bool) {
	obj, ok := result.(map[string]any)
	if !ok {
		return "", false
	}

	value, ok := obj["value"].(map[string]any)
	if !ok {
		return "", false
	}

	id, ok := value["thoughtId"].(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}

// stripThinking removes the thinking delimiters from candidate content,
// keeping the enclosed text.
func stripThinking(content string) string {
	content = strings.ReplaceAll(content, "<thinking>", "")
	content = strings.ReplaceAll(content, "</thinking>", "")

	return strings.TrimSpace(content)
}
