package team

import "encoding/json"

// Store is the keyed persistence interface the coordination logic runs
// against. Implementations live in subpackages (fsstore, sqlitestore) plus
// the in-memory store in this package for tests and ephemeral hosts.
//
// The current design carries no cross-process locking: concurrent writers to
// the same team can race. Operations that tolerate this (best-effort
// unblocking, notifications) are documented as such on the Manager.
type Store interface {
	// PutTeam creates or replaces a team record.
	PutTeam(t *Team) error
	// GetTeam returns the named team, or (nil, nil) when absent.
	GetTeam(name string) (*Team, error)
	// ListTeams returns all team names.
	ListTeams() ([]string, error)
	// DeleteTeam removes a team and its tasks. The engine never calls this;
	// it exists for external cleanup tooling.
	DeleteTeam(name string) error

	// PutTask creates or replaces a task owned by the named team.
	PutTask(teamName string, task *Task) error
	// GetTask returns a task by id, or (nil, nil) when absent.
	GetTask(teamName, id string) (*Task, error)
	// ListTasks returns all tasks of a team in id order.
	ListTasks(teamName string) ([]*Task, error)
	// DeleteTask removes a single task.
	DeleteTask(teamName, id string) error

	// SetActiveTeam persists the explicit current-team pointer. It is written
	// at creation time and read directly, so active-team resolution never
	// depends on directory enumeration order.
	SetActiveTeam(name string) error
	// ActiveTeam returns the current-team pointer, or "" when unset.
	ActiveTeam() (string, error)

	// AppendInbox appends one encoded protocol message to an agent's inbox.
	AppendInbox(agentID string, raw json.RawMessage) error
	// DrainInbox returns and clears an agent's pending messages in delivery
	// order.
	DrainInbox(agentID string) ([]json.RawMessage, error)
}
