// Package protocol defines the inter-agent message protocol: a closed set of
// message variants exchanged through recipient inboxes, a JSON codec
// discriminated on the "type" field, and the formatter that renders pending
// inbox messages into model-readable text.
//
// The variant set is closed via an unexported marker method so the formatter
// can match exhaustively; decoding an unrecognized type never drops the
// message silently but surfaces it as an Unknown variant that renders loudly.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds as they appear on the wire.
const (
	KindMessage              = "message"
	KindBroadcast            = "broadcast"
	KindShutdownRequest      = "shutdown_request"
	KindShutdownApproved     = "shutdown_approved"
	KindShutdownRejected     = "shutdown_rejected"
	KindPlanApprovalRequest  = "plan_approval_request"
	KindPlanApprovalResponse = "plan_approval_response"
	KindTaskCompleted        = "task_completed"
	KindIdleNotification     = "idle_notification"
)

// Message is one protocol message awaiting delivery into a recipient's
// context. All variants carry the sender and a timestamp; handshake variants
// additionally carry a request id that must round-trip unchanged between
// request and response.
type Message interface {
	isMessage()
	// Kind returns the wire discriminator for this variant.
	Kind() string
	// Sender returns the originating agent id.
	Sender() string
	// SentAt returns the message timestamp.
	SentAt() time.Time
}

// Header carries the fields common to every variant.
type Header struct {
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender returns the originating agent id.
func (h Header) Sender() string { return h.From }

// SentAt returns the message timestamp.
func (h Header) SentAt() time.Time { return h.Timestamp }

// NewHeader stamps a header for the given sender with the current UTC time.
func NewHeader(from string) Header {
	return Header{From: from, Timestamp: time.Now().UTC()}
}

// Chat is a direct message from one agent to another.
type Chat struct {
	Header
	To      string `json:"to,omitempty"`
	Content string `json:"content"`
}

func (Chat) isMessage() {}

// Kind implements Message.
func (Chat) Kind() string { return KindMessage }

// Broadcast is a message fanned out to every team member except the sender.
type Broadcast struct {
	Header
	Content string `json:"content"`
}

func (Broadcast) isMessage() {}

// Kind implements Message.
func (Broadcast) Kind() string { return KindBroadcast }

// ShutdownRequest opens a two-phase shutdown handshake.
type ShutdownRequest struct {
	Header
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

func (ShutdownRequest) isMessage() {}

// Kind implements Message.
func (ShutdownRequest) Kind() string { return KindShutdownRequest }

// ShutdownApproved closes a shutdown handshake positively. RequestID must
// echo the originating request unchanged.
type ShutdownApproved struct {
	Header
	RequestID string `json:"requestId"`
}

func (ShutdownApproved) isMessage() {}

// Kind implements Message.
func (ShutdownApproved) Kind() string { return KindShutdownApproved }

// ShutdownRejected closes a shutdown handshake negatively with a reason.
type ShutdownRejected struct {
	Header
	RequestID string `json:"requestId"`
	Reason    string `json:"reason"`
}

func (ShutdownRejected) isMessage() {}

// Kind implements Message.
func (ShutdownRejected) Kind() string { return KindShutdownRejected }

// PlanApprovalRequest asks the recipient to approve or reject a plan.
type PlanApprovalRequest struct {
	Header
	RequestID   string `json:"requestId"`
	PlanContent string `json:"planContent"`
}

func (PlanApprovalRequest) isMessage() {}

// Kind implements Message.
func (PlanApprovalRequest) Kind() string { return KindPlanApprovalRequest }

// PlanApprovalResponse answers a PlanApprovalRequest. RequestID must echo the
// originating request unchanged.
type PlanApprovalResponse struct {
	Header
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Feedback  string `json:"feedback,omitempty"`
}

func (PlanApprovalResponse) isMessage() {}

// Kind implements Message.
func (PlanApprovalResponse) Kind() string { return KindPlanApprovalResponse }

// TaskCompleted notifies the team lead that a member finished a task.
type TaskCompleted struct {
	Header
	TaskID  string `json:"taskId"`
	Subject string `json:"subject,omitempty"`
}

func (TaskCompleted) isMessage() {}

// Kind implements Message.
func (TaskCompleted) Kind() string { return KindTaskCompleted }

// IdleNotification signals that the sending agent has no current task.
type IdleNotification struct {
	Header
	Note string `json:"note,omitempty"`
}

func (IdleNotification) isMessage() {}

// Kind implements Message.
func (IdleNotification) Kind() string { return KindIdleNotification }

// Unknown preserves a message whose type discriminator the codec does not
// recognize. It exists so forward-incompatible messages stay visible: the
// formatter renders it as an explicit unknown-message marker.
type Unknown struct {
	Header
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (Unknown) isMessage() {}

// Kind implements Message.
func (u Unknown) Kind() string { return u.Type }

// Marshal serializes a message with its "type" discriminator injected.
func Marshal(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Kind(), err)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Kind(), err)
	}
	obj["type"] = m.Kind()
	return json.Marshal(obj)
}

// Unmarshal decodes a wire message into its concrete variant. Unrecognized
// types decode into Unknown rather than failing, so routing layers can still
// deliver them and the formatter can flag them.
func Unmarshal(data []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
		Header
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	decode := func(m Message) (Message, error) {
		// m must be a pointer for unmarshal; callers pass &T{}.
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("decode %s message: %w", probe.Type, err)
		}
		return m, nil
	}

	switch probe.Type {
	case KindMessage:
		m, err := decode(&Chat{})
		if err != nil {
			return nil, err
		}
		return *m.(*Chat), nil
	case KindBroadcast:
		m, err := decode(&Broadcast{})
		if err != nil {
			return nil, err
		}
		return *m.(*Broadcast), nil
	case KindShutdownRequest:
		m, err := decode(&ShutdownRequest{})
		if err != nil {
			return nil, err
		}
		return *m.(*ShutdownRequest), nil
	case KindShutdownApproved:
		m, err := decode(&ShutdownApproved{})
		if err != nil {
			return nil, err
		}
		return *m.(*ShutdownApproved), nil
	case KindShutdownRejected:
		m, err := decode(&ShutdownRejected{})
		if err != nil {
			return nil, err
		}
		return *m.(*ShutdownRejected), nil
	case KindPlanApprovalRequest:
		m, err := decode(&PlanApprovalRequest{})
		if err != nil {
			return nil, err
		}
		return *m.(*PlanApprovalRequest), nil
	case KindPlanApprovalResponse:
		m, err := decode(&PlanApprovalResponse{})
		if err != nil {
			return nil, err
		}
		return *m.(*PlanApprovalResponse), nil
	case KindTaskCompleted:
		m, err := decode(&TaskCompleted{})
		if err != nil {
			return nil, err
		}
		return *m.(*TaskCompleted), nil
	case KindIdleNotification:
		m, err := decode(&IdleNotification{})
		if err != nil {
			return nil, err
		}
		return *m.(*IdleNotification), nil
	case "":
		return nil, fmt.Errorf("message missing type field")
	default:
		return Unknown{Header: probe.Header, Type: probe.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
