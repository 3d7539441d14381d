// Package team implements the shared task graph and coordination state for a
// named group of cooperating agents. A team owns its tasks; tasks move
// pending -> in_progress -> completed with blockedBy edges acting as guards.
// Persistence hides behind a small keyed Store interface so the same logic
// runs against a filesystem tree, sqlite, or an in-memory store.
package team

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Team phases.
const (
	PhasePlanning  = "planning"
	PhaseExecution = "execution"
)

// Member roles.
const (
	RoleCoordinator = "coordinator"
	RoleMember      = "member"
)

// Member statuses.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusDone   = "done"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

// nameRE constrains team names to a filesystem- and URL-safe charset.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// ErrNoActiveTeam is returned by operations that require a current team when
// none has been created yet.
var ErrNoActiveTeam = errors.New("no active team")

// Settings holds per-team tunables persisted with the team config.
type Settings struct {
	MaxMembers int  `json:"maxMembers"`
	AutoAssign bool `json:"autoAssign"`
}

// Member is one agent participating in a team.
type Member struct {
	AgentID   string    `json:"agentId"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	AgentType string    `json:"agentType"`
	Model     string    `json:"model"`
	JoinedAt  time.Time `json:"joinedAt"`
	Status    string    `json:"status"`
	CWD       string    `json:"cwd"`
}

// Team is a named group of cooperating agents sharing one task graph. Teams
// are created once via team_create and never deleted by the engine itself;
// deletion is an external operation.
type Team struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	LeadAgentID string   `json:"leadAgentId"`
	Phase       string   `json:"phase"`
	Members     []Member `json:"members"`
	Settings    Settings `json:"settings"`
}

// MemberByID returns the member with the given agent id, or nil.
func (t *Team) MemberByID(agentID string) *Member {
	for i := range t.Members {
		if t.Members[i].AgentID == agentID {
			return &t.Members[i]
		}
	}
	return nil
}

// Task is one unit of team work. BlockedBy lists prerequisite task ids; a
// task is unblockable once every remaining entry refers to a completed or
// absent task. Callers always observe the effective (pre-filtered) form via
// summaries; the raw list persists here.
type Task struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	BlockedBy   []string  `json:"blockedBy"`
	Blocks      []string  `json:"blocks"`
	Phase       string    `json:"phase"`
	Owner       string    `json:"owner,omitempty"`
	ActiveForm  string    `json:"activeForm,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary is the caller-facing projection of a task: blockedBy excludes
// completed and nonexistent ids, and owner is normalized to null when unset.
type Summary struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority,omitempty"`
	BlockedBy  []string `json:"blockedBy"`
	Owner      *string  `json:"owner"`
	ActiveForm string   `json:"activeForm,omitempty"`
}

// ValidateName reports whether name is a legal team name.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("Invalid team name: must match %s", nameRE.String())
	}
	return nil
}

// validTaskStatus reports whether s is a known task status.
func validTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}
