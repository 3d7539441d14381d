package core

// Message is one entry in an agent's accumulated context. A message carries
// either conversational text, a batch of tool calls declared by the
// assistant, or the results answering earlier calls. The pruning contract
// depends on call/result pairing being expressed through these fields.
type Message struct {
	Role        string       `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: "user", Text: text}
}

// NewAssistantMessage creates an assistant-authored text message.
func NewAssistantMessage(text string) Message {
	return Message{Role: "assistant", Text: text}
}

// NewToolCallMessage wraps a batch of declared tool calls. Text is the
// assistant commentary accompanying the calls, often empty.
func NewToolCallMessage(text string, calls ...ToolCall) Message {
	return Message{Role: "assistant", Text: text, ToolCalls: calls}
}

// NewToolResultMessage wraps a batch of tool results.
func NewToolResultMessage(results ...ToolResult) Message {
	return Message{Role: "tool", ToolResults: results}
}

// CalledIDs returns the ids of all tool calls declared by this message.
func (m Message) CalledIDs() []string {
	ids := make([]string, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		ids = append(ids, tc.ID)
	}
	return ids
}

// ResultIDs returns the ids answered by this message's tool results.
func (m Message) ResultIDs() []string {
	ids := make([]string, 0, len(m.ToolResults))
	for _, tr := range m.ToolResults {
		ids = append(ids, tr.CallID)
	}
	return ids
}
