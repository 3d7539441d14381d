package core

import (
	"encoding/json"
	"fmt"
)

// ToolCall identifies one requested tool invocation within a run. IDs are
// unique per run; every ToolResult must reference exactly one prior ToolCall.
type ToolCall struct {
	ID    string         `json:"toolCallId"`
	Name  string         `json:"toolName"`
	Input map[string]any `json:"input"`
}

// Output is the tagged result payload of a tool invocation. Concrete types
// form a closed set (json | text | error) via the unexported isOutput marker.
type Output interface{ isOutput() }

// JSONOutput carries a JSON-serializable structured result.
type JSONOutput struct {
	Value any
}

// isOutput implements the Output interface for JSONOutput.
func (JSONOutput) isOutput() {}

// TextOutput carries a plain text result.
type TextOutput struct {
	Text string
}

// isOutput implements the Output interface for TextOutput.
func (TextOutput) isOutput() {}

// ErrorOutput carries a tool-level failure. It crosses the tool boundary as a
// {"error": string} JSON payload, never as a raw error value.
type ErrorOutput struct {
	Message string
}

// isOutput implements the Output interface for ErrorOutput.
func (ErrorOutput) isOutput() {}

// ToolResult pairs a tool call id with its tagged output.
type ToolResult struct {
	CallID string
	Output Output
}

// wireOutput is the serialized form of a single output segment.
type wireOutput struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MarshalJSON renders the wire shape {"toolCallId":...,"output":[{type,value}]}.
// Error outputs serialize as json segments carrying {"error": message}.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	var seg wireOutput
	switch out := r.Output.(type) {
	case JSONOutput:
		seg = wireOutput{Type: "json", Value: out.Value}
	case TextOutput:
		seg = wireOutput{Type: "text", Value: out.Text}
	case ErrorOutput:
		seg = wireOutput{Type: "json", Value: map[string]any{"error": out.Message}}
	case nil:
		return nil, fmt.Errorf("tool result %s has no output", r.CallID)
	default:
		return nil, fmt.Errorf("unknown output type %T", r.Output)
	}

	return json.Marshal(struct {
		CallID string       `json:"toolCallId"`
		Output []wireOutput `json:"output"`
	}{CallID: r.CallID, Output: []wireOutput{seg}})
}

// IsError reports whether the result carries an error output.
func (r ToolResult) IsError() bool {
	_, ok := r.Output.(ErrorOutput)
	return ok
}

// OutputText flattens the output into human-readable text for injection into
// model context.
func (r ToolResult) OutputText() string {
	switch out := r.Output.(type) {
	case TextOutput:
		return out.Text
	case JSONOutput:
		b, err := json.Marshal(out.Value)
		if err != nil {
			return fmt.Sprintf("%v", out.Value)
		}
		return string(b)
	case ErrorOutput:
		b, _ := json.Marshal(map[string]string{"error": out.Message})
		return string(b)
	default:
		return ""
	}
}
