package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInboxEmpty(t *testing.T) {
	f := NewFormatter()

	text, ok := f.FormatInbox(nil)
	assert.False(t, ok)
	assert.Empty(t, text)

	text, ok = f.FormatInbox([]Message{})
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestFormatInboxContainer(t *testing.T) {
	f := NewFormatter()
	h := Header{From: "lead-1", Timestamp: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}

	text, ok := f.FormatInbox([]Message{
		Chat{Header: h, To: "agent-1", Content: "first"},
		Chat{Header: h, To: "agent-1", Content: "second"},
	})
	require.True(t, ok)
	assert.Contains(t, text, "You have 2 new messages:")
	assert.Contains(t, text, "first")
	assert.Contains(t, text, "second")

	text, ok = f.FormatInbox([]Message{Chat{Header: h, Content: "only"}})
	require.True(t, ok)
	assert.Contains(t, text, "You have 1 new message:")
}

func TestFormatMessageHeaderLine(t *testing.T) {
	f := NewFormatter()
	h := Header{From: "lead-1", Timestamp: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}

	text, ok := f.FormatInbox([]Message{Chat{Header: h, Content: "hi"}})
	require.True(t, ok)
	assert.Contains(t, text, "[message from lead-1 at 2025-03-14T09:00:00Z]")
}

func TestFormatShutdownRequestInstructions(t *testing.T) {
	f := NewFormatter()

	text, ok := f.FormatInbox([]Message{ShutdownRequest{
		Header:    Header{From: "lead-1", Timestamp: time.Now()},
		RequestID: "req-77",
		Reason:    "work finished",
	}})
	require.True(t, ok)

	// The recipient is a model; the rendering spells out exactly how to answer.
	assert.Contains(t, text, `shutdown_approved message with requestId "req-77"`)
	assert.Contains(t, text, `shutdown_rejected message with requestId "req-77"`)
	assert.Contains(t, text, "The requestId must be echoed exactly as given.")
	assert.Contains(t, text, "work finished")
}

func TestFormatPlanApprovalRequestInstructions(t *testing.T) {
	f := NewFormatter()

	text, ok := f.FormatInbox([]Message{PlanApprovalRequest{
		Header:      Header{From: "member-2", Timestamp: time.Now()},
		RequestID:   "req-9",
		PlanContent: "1. refactor\n2. test",
	}})
	require.True(t, ok)

	assert.Contains(t, text, "1. refactor")
	assert.Contains(t, text, `plan_approval_response message carrying requestId "req-9"`)
	assert.Contains(t, text, "approved (true or false)")
	assert.Contains(t, text, "The requestId must be echoed exactly as given.")
}

func TestFormatTaskCompletedAndIdle(t *testing.T) {
	f := NewFormatter()
	h := Header{From: "member-2", Timestamp: time.Now()}

	text, ok := f.FormatInbox([]Message{
		TaskCompleted{Header: h, TaskID: "2", Subject: "set up CI"},
		IdleNotification{Header: h},
	})
	require.True(t, ok)
	assert.Contains(t, text, "member-2 completed task 2 (set up CI).")
	assert.Contains(t, text, "member-2 is idle and has no current task.")
}

func TestFormatUnknownMessageRendersLoudMarker(t *testing.T) {
	f := NewFormatter()

	text, ok := f.FormatInbox([]Message{Unknown{
		Header: Header{From: "agent-9", Timestamp: time.Now()},
		Type:   "telemetry_ping",
	}})
	require.True(t, ok)
	assert.Contains(t, text, `!! unknown message kind "telemetry_ping" from agent-9`)
}
