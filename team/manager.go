package team

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/protocol"
)

// Manager implements the team coordination operations on top of a Store and
// routes protocol notifications into member inboxes. Validation always
// happens before any mutation; not-found conditions surface as descriptive
// errors, never panics. Multi-write operations (downstream unblocking,
// notifications) are best-effort: a failure in one sub-step is logged and
// does not roll back or abort the others.
type Manager struct {
	store      Store
	logger     logging.Logger
	now        func() time.Time
	maxMembers int
}

// ManagerOptions holds optional Manager dependencies.
type ManagerOptions struct {
	Logger logging.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
	// MaxMembers caps membership of newly created teams. Defaults to 10.
	MaxMembers int
}

// NewManager constructs a Manager bound to a store.
func NewManager(store Store, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
		MaxMembers: 10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{store: store, logger: opts.Logger, now: opts.Now, maxMembers: opts.MaxMembers}
}

// CreateTeam validates and creates a new team with the caller as lead
// (role coordinator), persists the config plus an empty task set, and
// records the team as the active-team pointer. Duplicate or invalid names
// fail before any mutation.
func (m *Manager) CreateTeam(leadAgentID, leadName, name, description, agentType, model string) (*Team, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	existing, err := m.store.GetTeam(name)
	if err != nil {
		return nil, fmt.Errorf("look up team %q: %w", name, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("Team %q already exists", name)
	}

	if leadName == "" {
		leadName = leadAgentID
	}
	now := m.now().UTC()
	t := &Team{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		LeadAgentID: leadAgentID,
		Phase:       PhasePlanning,
		Members: []Member{{
			AgentID:   leadAgentID,
			Name:      leadName,
			Role:      RoleCoordinator,
			AgentType: agentType,
			Model:     model,
			JoinedAt:  now,
			Status:    StatusActive,
		}},
		Settings: Settings{MaxMembers: m.maxMembers},
	}

	if err := m.store.PutTeam(t); err != nil {
		return nil, fmt.Errorf("persist team %q: %w", name, err)
	}
	if err := m.store.SetActiveTeam(name); err != nil {
		return nil, fmt.Errorf("record active team %q: %w", name, err)
	}

	m.logger.Info("team.created", "team", name, "lead", leadAgentID)
	return t, nil
}

// AddMember appends a member to the active team.
func (m *Manager) AddMember(member Member) (*Team, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	if t.MemberByID(member.AgentID) != nil {
		return nil, fmt.Errorf("agent %q is already a member of team %q", member.AgentID, t.Name)
	}
	if t.Settings.MaxMembers > 0 && len(t.Members) >= t.Settings.MaxMembers {
		return nil, fmt.Errorf("team %q is full (%d members)", t.Name, t.Settings.MaxMembers)
	}
	if member.Role == "" {
		member.Role = RoleMember
	}
	if member.Status == "" {
		member.Status = StatusActive
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = m.now().UTC()
	}
	t.Members = append(t.Members, member)
	if err := m.store.PutTeam(t); err != nil {
		return nil, fmt.Errorf("persist team %q: %w", t.Name, err)
	}
	return t, nil
}

// ActiveTeam resolves the current team via the persisted pointer.
func (m *Manager) ActiveTeam() (*Team, error) {
	name, err := m.store.ActiveTeam()
	if err != nil {
		return nil, fmt.Errorf("read active team pointer: %w", err)
	}
	if name == "" {
		return nil, ErrNoActiveTeam
	}
	t, err := m.store.GetTeam(name)
	if err != nil {
		return nil, fmt.Errorf("load team %q: %w", name, err)
	}
	if t == nil {
		return nil, ErrNoActiveTeam
	}
	return t, nil
}

// CreateTask adds a task to the active team's graph. Ids are sequential
// numeric strings unless an explicit id is supplied.
func (m *Manager) CreateTask(task Task) (*Task, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	if task.Subject == "" {
		return nil, fmt.Errorf("task subject is required")
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	if !validTaskStatus(task.Status) {
		return nil, fmt.Errorf("invalid task status %q", task.Status)
	}

	tasks, err := m.store.ListTasks(t.Name)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %q: %w", t.Name, err)
	}
	if task.ID == "" {
		task.ID = nextTaskID(tasks)
	} else {
		for _, existing := range tasks {
			if existing.ID == task.ID {
				return nil, fmt.Errorf("task %q already exists", task.ID)
			}
		}
	}

	now := m.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Phase == "" {
		task.Phase = t.Phase
	}

	if err := m.store.PutTask(t.Name, &task); err != nil {
		return nil, fmt.Errorf("persist task %q: %w", task.ID, err)
	}
	m.logger.Info("team.task.created", "team", t.Name, "task", task.ID, "subject", task.Subject)
	return &task, nil
}

// TaskUpdate describes a partial task mutation. Nil fields are untouched.
type TaskUpdate struct {
	Status     *string
	Owner      *string
	ActiveForm *string
	Subject    *string
	BlockedBy  *[]string
}

// UpdateTask applies a partial update to a task of the active team. Status
// changes must follow pending -> in_progress -> completed (skipping
// in_progress is allowed; moving backwards is not).
func (m *Manager) UpdateTask(id string, upd TaskUpdate) (*Task, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	task, err := m.store.GetTask(t.Name, id)
	if err != nil {
		return nil, fmt.Errorf("load task %q: %w", id, err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %q not found", id)
	}

	if upd.Status != nil {
		next := *upd.Status
		if !validTaskStatus(next) {
			return nil, fmt.Errorf("invalid task status %q", next)
		}
		if statusRank(next) < statusRank(task.Status) {
			return nil, fmt.Errorf("cannot move task %q from %s back to %s", id, task.Status, next)
		}
		task.Status = next
	}
	if upd.Owner != nil {
		task.Owner = *upd.Owner
	}
	if upd.ActiveForm != nil {
		task.ActiveForm = *upd.ActiveForm
	}
	if upd.Subject != nil {
		task.Subject = *upd.Subject
	}
	if upd.BlockedBy != nil {
		task.BlockedBy = append([]string(nil), (*upd.BlockedBy)...)
	}
	task.UpdatedAt = m.now().UTC()

	if err := m.store.PutTask(t.Name, task); err != nil {
		return nil, fmt.Errorf("persist task %q: %w", id, err)
	}
	return task, nil
}

// GetTask returns the full task record from the active team.
func (m *Manager) GetTask(id string) (*Task, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	task, err := m.store.GetTask(t.Name, id)
	if err != nil {
		return nil, fmt.Errorf("load task %q: %w", id, err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %q not found", id)
	}
	return task, nil
}

// ListTasks returns caller-facing summaries for the active team: blockedBy
// is pre-filtered to exclude completed or nonexistent prerequisites and
// owner is normalized to null when unset.
func (m *Manager) ListTasks() ([]Summary, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	tasks, err := m.store.ListTasks(t.Name)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %q: %w", t.Name, err)
	}

	byID := make(map[string]*Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	summaries := make([]Summary, 0, len(tasks))
	for _, task := range tasks {
		s := Summary{
			ID:         task.ID,
			Subject:    task.Subject,
			Status:     task.Status,
			Priority:   task.Priority,
			BlockedBy:  effectiveBlockedBy(task, byID),
			ActiveForm: task.ActiveForm,
		}
		if task.Owner != "" {
			owner := task.Owner
			s.Owner = &owner
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// CompletionReport describes the outcome of TaskCompleted.
type CompletionReport struct {
	// Task is the completed task, or nil when the caller had none.
	Task *Task
	// Unblocked lists ids of tasks whose effective blockedBy became empty.
	Unblocked []string
}

// TaskCompleted marks the caller's current task completed, strips its id
// from every other task's blockedBy (best-effort: individual write failures
// are logged and skipped, not rolled back), notifies the team lead's inbox
// with a task_completed message unless the caller is the lead, and always
// emits an idle_notification for the caller.
func (m *Manager) TaskCompleted(agentID string) (*CompletionReport, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return nil, err
	}
	tasks, err := m.store.ListTasks(t.Name)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %q: %w", t.Name, err)
	}

	report := &CompletionReport{}
	current := currentTaskOf(tasks, agentID)
	if current != nil {
		current.Status = TaskCompleted
		current.UpdatedAt = m.now().UTC()
		if err := m.store.PutTask(t.Name, current); err != nil {
			return nil, fmt.Errorf("persist completed task %q: %w", current.ID, err)
		}
		report.Task = current
		report.Unblocked = m.unblockDownstream(t.Name, tasks, current.ID)

		if agentID != t.LeadAgentID {
			note := protocol.TaskCompleted{
				Header:  protocol.NewHeader(agentID),
				TaskID:  current.ID,
				Subject: current.Subject,
			}
			if err := m.Deliver(t.LeadAgentID, note); err != nil {
				m.logger.Warn("team.notify.lead.failed", "team", t.Name, "task", current.ID, "error", err.Error())
			}
		}
	}

	idle := protocol.IdleNotification{Header: protocol.NewHeader(agentID)}
	if err := m.Deliver(t.LeadAgentID, idle); err != nil {
		m.logger.Warn("team.notify.idle.failed", "team", t.Name, "agent", agentID, "error", err.Error())
	}

	return report, nil
}

// unblockDownstream removes completedID from every other task's blockedBy.
// Each write is independent; failures are logged and do not abort the batch.
// Returns the ids of tasks whose effective blockedBy became empty in this
// operation (no separate commit is needed by the caller).
func (m *Manager) unblockDownstream(teamName string, tasks []*Task, completedID string) []string {
	var unblocked []string
	byID := make(map[string]*Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	for _, task := range tasks {
		if task.ID == completedID || !contains(task.BlockedBy, completedID) {
			continue
		}
		task.BlockedBy = remove(task.BlockedBy, completedID)
		task.UpdatedAt = m.now().UTC()
		if err := m.store.PutTask(teamName, task); err != nil {
			m.logger.Warn("team.task.unblock.failed", "team", teamName, "task", task.ID, "error", err.Error())
			continue
		}
		if len(effectiveBlockedBy(task, byID)) == 0 {
			unblocked = append(unblocked, task.ID)
		}
	}
	return unblocked
}

// Deliver encodes a protocol message and appends it to the recipient's
// inbox, applying team-level side effects for coordination messages: an
// approved plan response flips the team into the execution phase, and an
// idle notification marks the sending member idle. Side-effect failures are
// logged, not returned; the delivery itself is the contract.
func (m *Manager) Deliver(to string, msg protocol.Message) error {
	raw, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Kind(), err)
	}
	if err := m.store.AppendInbox(to, raw); err != nil {
		return fmt.Errorf("append to inbox of %q: %w", to, err)
	}

	switch msg := msg.(type) {
	case protocol.PlanApprovalResponse:
		if msg.Approved {
			m.enterExecutionPhase(msg.Sender())
		}
	case protocol.IdleNotification:
		m.markMemberStatus(msg.Sender(), StatusIdle)
	}
	return nil
}

// Broadcast delivers the message to every member of the active team except
// the sender. Individual delivery failures are logged and skipped.
func (m *Manager) Broadcast(msg protocol.Broadcast) (int, error) {
	t, err := m.ActiveTeam()
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, member := range t.Members {
		if member.AgentID == msg.Sender() {
			continue
		}
		if err := m.Deliver(member.AgentID, msg); err != nil {
			m.logger.Warn("team.broadcast.failed", "team", t.Name, "to", member.AgentID, "error", err.Error())
			continue
		}
		delivered++
	}
	return delivered, nil
}

// DrainInbox returns and clears an agent's pending messages, decoded.
// Undecodable entries are preserved as Unknown so nothing disappears
// silently.
func (m *Manager) DrainInbox(agentID string) ([]protocol.Message, error) {
	raws, err := m.store.DrainInbox(agentID)
	if err != nil {
		return nil, fmt.Errorf("drain inbox of %q: %w", agentID, err)
	}
	msgs := make([]protocol.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := protocol.Unmarshal(raw)
		if err != nil {
			m.logger.Warn("team.inbox.decode.failed", "agent", agentID, "error", err.Error())
			msg = protocol.Unknown{Type: "undecodable", Raw: raw}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// enterExecutionPhase flips the active team from planning to execution.
// Only the lead's approval carries that authority, so responses minted by
// other members (or non-members) leave the phase untouched.
func (m *Manager) enterExecutionPhase(approver string) {
	t, err := m.ActiveTeam()
	if err != nil {
		m.logger.Warn("team.phase.load.failed", "error", err.Error())
		return
	}
	if t.LeadAgentID != approver {
		m.logger.Warn("team.phase.approval.ignored", "team", t.Name, "approver", approver)
		return
	}
	if t.Phase == PhaseExecution {
		return
	}
	t.Phase = PhaseExecution
	if err := m.store.PutTeam(t); err != nil {
		m.logger.Warn("team.phase.persist.failed", "team", t.Name, "error", err.Error())
		return
	}
	m.logger.Info("team.phase.changed", "team", t.Name, "phase", PhaseExecution)
}

func (m *Manager) markMemberStatus(agentID, status string) {
	t, err := m.ActiveTeam()
	if err != nil {
		return
	}
	member := t.MemberByID(agentID)
	if member == nil || member.Status == status {
		return
	}
	member.Status = status
	if err := m.store.PutTeam(t); err != nil {
		m.logger.Warn("team.member.status.persist.failed", "team", t.Name, "agent", agentID, "error", err.Error())
	}
}

// currentTaskOf picks the caller's task: an in_progress task owned by the
// caller wins; otherwise any non-completed task owned by the caller.
func currentTaskOf(tasks []*Task, agentID string) *Task {
	var fallback *Task
	for _, task := range tasks {
		if task.Owner != agentID || task.Status == TaskCompleted {
			continue
		}
		if task.Status == TaskInProgress {
			return task
		}
		if fallback == nil {
			fallback = task
		}
	}
	return fallback
}

// effectiveBlockedBy filters a task's blockedBy down to prerequisites that
// still exist and are not completed.
func effectiveBlockedBy(task *Task, byID map[string]*Task) []string {
	out := []string{}
	for _, id := range task.BlockedBy {
		dep, ok := byID[id]
		if !ok || dep.Status == TaskCompleted {
			continue
		}
		out = append(out, id)
	}
	return out
}

func statusRank(s string) int {
	switch s {
	case TaskPending:
		return 0
	case TaskInProgress:
		return 1
	case TaskCompleted:
		return 2
	}
	return -1
}

// nextTaskID picks max(numeric ids)+1, starting at "1".
func nextTaskID(tasks []*Task) string {
	max := 0
	for _, t := range tasks {
		if n, err := strconv.Atoi(t.ID); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// taskIDLess orders numeric ids numerically and everything else lexically.
func taskIDLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func remove(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// NewRequestID creates a fresh handshake correlation id.
func NewRequestID() string { return uuid.NewString() }
