package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Formatter renders pending inbox messages into a single model-readable
// block. The rendering is self-describing: every message names its kind,
// sender and timestamp, and handshake messages include explicit instructions
// for how to respond, because the responder is itself a model-driven agent
// reading this text.
type Formatter struct{}

// NewFormatter constructs a Formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// FormatInbox renders the inbox contents. An empty inbox yields ("", false):
// nothing is injected into the agent's context. A non-empty inbox yields the
// concatenated message blocks wrapped in a "you have N new messages"
// container.
func (f *Formatter) FormatInbox(msgs []Message) (string, bool) {
	if len(msgs) == 0 {
		return "", false
	}

	var b strings.Builder
	noun := "messages"
	if len(msgs) == 1 {
		noun = "message"
	}
	fmt.Fprintf(&b, "You have %d new %s:\n", len(msgs), noun)
	for _, m := range msgs {
		b.WriteString("\n")
		b.WriteString(f.formatMessage(m))
	}
	return b.String(), true
}

// formatMessage renders one message block. The type switch is exhaustive
// over the closed variant set; the default branch only fires for Unknown
// (or a future variant added without updating this formatter) and renders a
// loud marker instead of dropping the message.
func (f *Formatter) formatMessage(m Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s from %s at %s]\n", m.Kind(), m.Sender(), formatTime(m.SentAt()))

	switch m := m.(type) {
	case Chat:
		b.WriteString(m.Content)
		b.WriteString("\n")
	case Broadcast:
		b.WriteString("(broadcast to the whole team)\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
	case ShutdownRequest:
		if m.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", m.Reason)
		}
		fmt.Fprintf(&b, "%s asks you to shut down.\n", m.From)
		fmt.Fprintf(&b, "To approve, send a shutdown_approved message with requestId %q.\n", m.RequestID)
		fmt.Fprintf(&b, "To reject, send a shutdown_rejected message with requestId %q and a reason.\n", m.RequestID)
		b.WriteString("The requestId must be echoed exactly as given.\n")
	case ShutdownApproved:
		fmt.Fprintf(&b, "Shutdown request %s was approved. Finish any cleanup and stop.\n", m.RequestID)
	case ShutdownRejected:
		fmt.Fprintf(&b, "Shutdown request %s was rejected: %s\n", m.RequestID, m.Reason)
	case PlanApprovalRequest:
		fmt.Fprintf(&b, "%s requests approval for the following plan:\n\n%s\n\n", m.From, m.PlanContent)
		fmt.Fprintf(&b, "Respond with a plan_approval_response message carrying requestId %q, ", m.RequestID)
		b.WriteString("approved (true or false) and optional feedback. ")
		b.WriteString("The requestId must be echoed exactly as given.\n")
	case PlanApprovalResponse:
		verdict := "rejected"
		if m.Approved {
			verdict = "approved"
		}
		fmt.Fprintf(&b, "Your plan (request %s) was %s.\n", m.RequestID, verdict)
		if m.Feedback != "" {
			fmt.Fprintf(&b, "Feedback: %s\n", m.Feedback)
		}
	case TaskCompleted:
		fmt.Fprintf(&b, "%s completed task %s", m.From, m.TaskID)
		if m.Subject != "" {
			fmt.Fprintf(&b, " (%s)", m.Subject)
		}
		b.WriteString(".\n")
	case IdleNotification:
		fmt.Fprintf(&b, "%s is idle and has no current task.\n", m.From)
		if m.Note != "" {
			fmt.Fprintf(&b, "Note: %s\n", m.Note)
		}
	default:
		fmt.Fprintf(&b, "!! unknown message kind %q from %s; the sender may be running a newer protocol version.\n", m.Kind(), m.Sender())
	}

	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	return t.UTC().Format(time.RFC3339)
}
