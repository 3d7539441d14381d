package team

import (
	"encoding/json"
	"sort"
	"sync"
)

// InMemoryStore is a volatile Store keeping all team state in process-local
// maps. It is safe for concurrent access and best suited for tests or
// ephemeral hosts. Returned records are copies to prevent external mutation
// of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	teams   map[string]*Team
	tasks   map[string]map[string]*Task // team -> id -> task
	inboxes map[string][]json.RawMessage
	active  string
}

// NewInMemoryStore constructs an empty in-memory team store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		teams:   make(map[string]*Team),
		tasks:   make(map[string]map[string]*Task),
		inboxes: make(map[string][]json.RawMessage),
	}
}

// PutTeam stores a copy of the team record.
func (s *InMemoryStore) PutTeam(t *Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	c.Members = append([]Member(nil), t.Members...)
	s.teams[t.Name] = &c
	if s.tasks[t.Name] == nil {
		s.tasks[t.Name] = make(map[string]*Task)
	}
	return nil
}

// GetTeam returns a copy of the named team or (nil, nil) when absent.
func (s *InMemoryStore) GetTeam(name string) (*Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[name]
	if !ok {
		return nil, nil
	}
	c := *t
	c.Members = append([]Member(nil), t.Members...)
	return &c, nil
}

// ListTeams returns all team names sorted for determinism.
func (s *InMemoryStore) ListTeams() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.teams))
	for n := range s.teams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteTeam removes a team and its tasks.
func (s *InMemoryStore) DeleteTeam(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, name)
	delete(s.tasks, name)
	if s.active == name {
		s.active = ""
	}
	return nil
}

// PutTask stores a copy of the task.
func (s *InMemoryStore) PutTask(teamName string, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[teamName] == nil {
		s.tasks[teamName] = make(map[string]*Task)
	}
	c := *task
	c.BlockedBy = append([]string(nil), task.BlockedBy...)
	c.Blocks = append([]string(nil), task.Blocks...)
	s.tasks[teamName][task.ID] = &c
	return nil
}

// GetTask returns a copy of a task or (nil, nil) when absent.
func (s *InMemoryStore) GetTask(teamName, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[teamName][id]
	if !ok {
		return nil, nil
	}
	c := *t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	c.Blocks = append([]string(nil), t.Blocks...)
	return &c, nil
}

// ListTasks returns copies of all tasks in id order.
func (s *InMemoryStore) ListTasks(teamName string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks[teamName]))
	for _, t := range s.tasks[teamName] {
		c := *t
		c.BlockedBy = append([]string(nil), t.BlockedBy...)
		c.Blocks = append([]string(nil), t.Blocks...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return taskIDLess(out[i].ID, out[j].ID) })
	return out, nil
}

// DeleteTask removes a single task.
func (s *InMemoryStore) DeleteTask(teamName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks[teamName], id)
	return nil
}

// SetActiveTeam persists the current-team pointer.
func (s *InMemoryStore) SetActiveTeam(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = name
	return nil
}

// ActiveTeam returns the current-team pointer or "".
func (s *InMemoryStore) ActiveTeam() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, nil
}

// AppendInbox appends one encoded message to an agent's inbox.
func (s *InMemoryStore) AppendInbox(agentID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes[agentID] = append(s.inboxes[agentID], append(json.RawMessage(nil), raw...))
	return nil
}

// DrainInbox returns and clears an agent's pending messages.
func (s *InMemoryStore) DrainInbox(agentID string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.inboxes[agentID]
	delete(s.inboxes, agentID)
	return msgs, nil
}
