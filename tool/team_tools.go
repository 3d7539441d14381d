package tool

import (
	"fmt"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/protocol"
	"github.com/hupe1980/agentcrew/team"
)

// TeamTools bundles the coordination tools backed by one team.Manager.
// Register them on every agent that participates in a team.
func TeamTools(m *team.Manager) []Tool {
	return []Tool{
		NewTeamCreateTool(m),
		NewTaskCreateTool(m),
		NewTaskGetTool(m),
		NewTaskListTool(m),
		NewTaskUpdateTool(m),
		NewTaskCompletedTool(m),
		NewSendMessageTool(m),
	}
}

// NewTeamCreateTool returns the team_create tool. The calling agent becomes
// the team lead (role coordinator); the new team becomes the active team.
func NewTeamCreateTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"team_create",
		"Create a new agent team and become its lead",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":        map[string]any{"type": "string", "description": "Team name (letters, digits, - and _, max 50 chars)"},
				"description": map[string]any{"type": "string", "description": "What the team is for"},
				"agent_type":  map[string]any{"type": "string", "description": "Agent type of the lead"},
			},
			"required": []string{"name"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			description, _ := args["description"].(string)
			agentType, _ := args["agent_type"].(string)
			t, err := m.CreateTeam(tc.AgentID(), tc.AgentName(), name, description, agentType, "")
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"name":        t.Name,
				"leadAgentId": t.LeadAgentID,
				"phase":       t.Phase,
			}, nil
		},
	)
}

// NewTaskCreateTool returns the task_create tool.
func NewTaskCreateTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"task_create",
		"Add a task to the team's shared task graph",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject":     map[string]any{"type": "string", "description": "Short imperative summary"},
				"description": map[string]any{"type": "string"},
				"priority":    map[string]any{"type": "string"},
				"blocked_by": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Ids of prerequisite tasks",
				},
			},
			"required": []string{"subject"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			t := team.Task{
				Subject:   stringArg(args, "subject"),
				Priority:  stringArg(args, "priority"),
				BlockedBy: stringSliceArg(args, "blocked_by"),
			}
			t.Description = stringArg(args, "description")
			created, err := m.CreateTask(t)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": created.ID, "subject": created.Subject, "status": created.Status}, nil
		},
	)
}

// NewTaskGetTool returns the task_get tool.
func NewTaskGetTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"task_get",
		"Fetch the full record of one task by id",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			t, err := m.GetTask(stringArg(args, "id"))
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	)
}

// NewTaskListTool returns the task_list tool. Summaries carry the effective
// blockedBy (completed and nonexistent prerequisites filtered out) and a
// null owner when unset.
func NewTaskListTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"task_list",
		"List all tasks of the active team with their effective blockers",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			summaries, err := m.ListTasks()
			if err != nil {
				return nil, err
			}
			return map[string]any{"tasks": summaries}, nil
		},
	)
}

// NewTaskUpdateTool returns the task_update tool.
func NewTaskUpdateTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"task_update",
		"Update status, owner or active form of a task",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":          map[string]any{"type": "string"},
				"status":      map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
				"owner":       map[string]any{"type": "string"},
				"active_form": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			var upd team.TaskUpdate
			if v, ok := args["status"].(string); ok {
				upd.Status = &v
			}
			if v, ok := args["owner"].(string); ok {
				upd.Owner = &v
			}
			if v, ok := args["active_form"].(string); ok {
				upd.ActiveForm = &v
			}
			t, err := m.UpdateTask(stringArg(args, "id"), upd)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": t.ID, "status": t.Status}, nil
		},
	)
}

// NewTaskCompletedTool returns the task_completed tool. The caller's current
// task is completed, downstream tasks are unblocked best-effort, the lead is
// notified, and an idle notification is emitted for the caller regardless of
// whether a task was found.
func NewTaskCompletedTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"task_completed",
		"Mark your current task as completed and unblock dependent tasks",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			report, err := m.TaskCompleted(tc.AgentID())
			if err != nil {
				return nil, err
			}
			out := map[string]any{"unblocked": report.Unblocked}
			if report.Task != nil {
				out["completed"] = report.Task.ID
			} else {
				out["completed"] = nil
				out["note"] = "no current task found for caller"
			}
			return out, nil
		},
	)
}

// NewSendMessageTool returns the send_message tool, the write side of the
// inter-agent protocol. It builds the protocol variant from the arguments
// and delivers it (or fans it out for broadcasts). Handshake responses must
// echo the originating request_id unchanged.
func NewSendMessageTool(m *team.Manager) *FunctionTool {
	return NewFunctionTool(
		"send_message",
		"Send a protocol message to a teammate or broadcast to the team",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{"type": "string", "enum": []string{
					"message", "broadcast", "shutdown_request", "shutdown_approved",
					"shutdown_rejected", "plan_approval_request", "plan_approval_response",
				}},
				"to":           map[string]any{"type": "string", "description": "Recipient agent id (not needed for broadcast)"},
				"content":      map[string]any{"type": "string"},
				"request_id":   map[string]any{"type": "string", "description": "Handshake correlation id; echo unchanged in responses"},
				"approved":     map[string]any{"type": "boolean"},
				"feedback":     map[string]any{"type": "string"},
				"reason":       map[string]any{"type": "string"},
				"plan_content": map[string]any{"type": "string"},
			},
			"required": []string{"type"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			kind := stringArg(args, "type")
			to := stringArg(args, "to")
			header := protocol.NewHeader(tc.AgentID())

			var msg protocol.Message
			switch kind {
			case protocol.KindMessage:
				msg = protocol.Chat{Header: header, To: to, Content: stringArg(args, "content")}
			case protocol.KindBroadcast:
				n, err := m.Broadcast(protocol.Broadcast{Header: header, Content: stringArg(args, "content")})
				if err != nil {
					return nil, err
				}
				return map[string]any{"delivered": n}, nil
			case protocol.KindShutdownRequest:
				msg = protocol.ShutdownRequest{Header: header, RequestID: requestID(args), Reason: stringArg(args, "reason")}
			case protocol.KindShutdownApproved:
				id := stringArg(args, "request_id")
				if id == "" {
					return nil, fmt.Errorf("shutdown_approved requires request_id")
				}
				msg = protocol.ShutdownApproved{Header: header, RequestID: id}
			case protocol.KindShutdownRejected:
				id := stringArg(args, "request_id")
				if id == "" {
					return nil, fmt.Errorf("shutdown_rejected requires request_id")
				}
				msg = protocol.ShutdownRejected{Header: header, RequestID: id, Reason: stringArg(args, "reason")}
			case protocol.KindPlanApprovalRequest:
				msg = protocol.PlanApprovalRequest{Header: header, RequestID: requestID(args), PlanContent: stringArg(args, "plan_content")}
			case protocol.KindPlanApprovalResponse:
				id := stringArg(args, "request_id")
				if id == "" {
					return nil, fmt.Errorf("plan_approval_response requires request_id")
				}
				approved, _ := args["approved"].(bool)
				msg = protocol.PlanApprovalResponse{Header: header, RequestID: id, Approved: approved, Feedback: stringArg(args, "feedback")}
			default:
				return nil, fmt.Errorf("unknown message type %q", kind)
			}

			if to == "" {
				return nil, fmt.Errorf("message type %q requires a recipient", kind)
			}
			if err := m.Deliver(to, msg); err != nil {
				return nil, err
			}
			return map[string]any{"delivered": 1, "to": to}, nil
		},
	)
}

// requestID returns the supplied handshake id or mints a fresh one for new
// requests.
func requestID(args map[string]any) string {
	if id, ok := args["request_id"].(string); ok && id != "" {
		return id
	}
	return team.NewRequestID()
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
