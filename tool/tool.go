// Package tool implements the tool calling subsystem: schema validated
// arguments, consistent error payloads and the registry the sequencer
// executes against. Side-effecting tools follow a strict contract: inputs
// are validated before any mutation, and a failed call never leaves partial
// shared state behind.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
)

// Tool is a structured capability an agent can invoke.
//
// Implementations must be safe for concurrent use; the sequencer stages
// calls from one batch in parallel. Tools that mutate a path-addressable
// resource should additionally implement PathAddressed, and tools that can
// separate preparation from mutation should implement sequencer.Stager so
// their side effects land in commit order.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to models to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. Arguments have been decoded from JSON and
	// are validated against Parameters before any side effect.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError reports a schema violation in supplied arguments.
type ValidationError = util.ValidationError

// ToolError is the uniform failure type crossing the tool boundary. It
// reaches the model as a {"error": string} result payload, never as a run
// abort.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"` // VALIDATION_ERROR, EXECUTION_ERROR or tool specific
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
