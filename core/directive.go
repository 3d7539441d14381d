package core

import (
	"encoding/json"
	"fmt"
)

// Directive is one unit of work yielded by a step program to its host. The
// concrete directive types form a closed set via the unexported isDirective
// marker, mirroring the Part pattern: hosts switch exhaustively and treat
// anything else as a programming error. A Directive is immutable once yielded.
type Directive interface{ isDirective() }

// StepDirective requests that the host perform one underlying model turn
// before resuming the program.
type StepDirective struct{}

// isDirective implements the Directive interface for StepDirective.
func (StepDirective) isDirective() {}

// StepAllDirective requests that the host perform all remaining model turns
// (until a turn produces no tool calls) before resuming the program.
type StepAllDirective struct{}

// isDirective implements the Directive interface for StepAllDirective.
func (StepAllDirective) isDirective() {}

// ToolCallDirective requests execution of a single named tool. When
// IncludeToolCall is set the call and its result are appended to the agent's
// context so subsequent model turns can observe them.
type ToolCallDirective struct {
	ToolName        string         `json:"toolName"`
	Input           map[string]any `json:"input"`
	IncludeToolCall bool           `json:"includeToolCall,omitempty"`
}

// isDirective implements the Directive interface for ToolCallDirective.
func (ToolCallDirective) isDirective() {}

// GenerateNDirective requests N parallel generations followed by best-of-N
// arbitration. The host clamps N to its supported range.
type GenerateNDirective struct {
	N int `json:"n"`
}

// isDirective implements the Directive interface for GenerateNDirective.
func (GenerateNDirective) isDirective() {}

// SetOutputDirective sets the run's final output and terminates the program.
type SetOutputDirective struct {
	Value any `json:"value"`
}

// isDirective implements the Directive interface for SetOutputDirective.
func (SetOutputDirective) isDirective() {}

// Wire discriminator values for typed directives. Tool call directives carry
// no type field; they are recognized by the presence of toolName.
const (
	directiveTypeStep      = "STEP"
	directiveTypeStepAll   = "STEP_ALL"
	directiveTypeGenerateN = "GENERATE_N"
	directiveTypeSetOutput = "SET_OUTPUT"
)

// MarshalDirective serializes a directive to its wire shape:
//
//	{"type":"STEP"} | {"type":"STEP_ALL"} | {"type":"GENERATE_N","n":3} |
//	{"type":"SET_OUTPUT","value":...} | {"toolName":...,"input":...,"includeToolCall":...}
func MarshalDirective(d Directive) ([]byte, error) {
	switch d := d.(type) {
	case StepDirective:
		return json.Marshal(map[string]any{"type": directiveTypeStep})
	case StepAllDirective:
		return json.Marshal(map[string]any{"type": directiveTypeStepAll})
	case GenerateNDirective:
		return json.Marshal(map[string]any{"type": directiveTypeGenerateN, "n": d.N})
	case SetOutputDirective:
		return json.Marshal(map[string]any{"type": directiveTypeSetOutput, "value": d.Value})
	case ToolCallDirective:
		return json.Marshal(d)
	default:
		return nil, fmt.Errorf("unknown directive type %T", d)
	}
}

// UnmarshalDirective decodes a wire shape produced by MarshalDirective.
// Objects without a type field are interpreted as tool call directives when
// they carry a toolName.
func UnmarshalDirective(data []byte) (Directive, error) {
	var probe struct {
		Type     string `json:"type"`
		ToolName string `json:"toolName"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode directive: %w", err)
	}

	switch probe.Type {
	case directiveTypeStep:
		return StepDirective{}, nil
	case directiveTypeStepAll:
		return StepAllDirective{}, nil
	case directiveTypeGenerateN:
		var d GenerateNDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode GENERATE_N directive: %w", err)
		}
		return d, nil
	case directiveTypeSetOutput:
		var d SetOutputDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode SET_OUTPUT directive: %w", err)
		}
		return d, nil
	case "":
		if probe.ToolName == "" {
			return nil, fmt.Errorf("directive has neither type nor toolName")
		}
		var d ToolCallDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode tool call directive: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown directive type %q", probe.Type)
	}
}
