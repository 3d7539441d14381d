// Package fsstore persists team state as a filesystem directory tree:
//
//	<root>/active-team                 current-team pointer
//	<root>/teams/<name>/config.json    team record
//	<root>/teams/<name>/tasks/<id>.json
//	<root>/inboxes/<agent>.json        pending protocol messages (JSON array)
//
// Writes go through a temp-file rename so readers never observe a torn
// record. There is no cross-process locking; concurrent writers to the same
// team can race, which the coordination layer treats as best-effort.
package fsstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/agentcrew/team"
)

// Store is a filesystem-backed team.Store rooted at a directory.
type Store struct {
	root string
	mu   sync.Mutex // serializes in-process read-modify-write on inboxes
}

// New creates the root directory if needed and returns a Store.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "teams"), filepath.Join(root, "inboxes")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) teamDir(name string) string  { return filepath.Join(s.root, "teams", name) }
func (s *Store) tasksDir(name string) string { return filepath.Join(s.teamDir(name), "tasks") }

// PutTeam writes the team config and ensures its task directory exists.
func (s *Store) PutTeam(t *team.Team) error {
	if err := os.MkdirAll(s.tasksDir(t.Name), 0o755); err != nil {
		return fmt.Errorf("create team dirs for %q: %w", t.Name, err)
	}
	return writeJSON(filepath.Join(s.teamDir(t.Name), "config.json"), t)
}

// GetTeam reads a team config, returning (nil, nil) when absent.
func (s *Store) GetTeam(name string) (*team.Team, error) {
	var t team.Team
	ok, err := readJSON(filepath.Join(s.teamDir(name), "config.json"), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// ListTeams enumerates team directories that carry a config.
func (s *Store) ListTeams() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "teams"))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.teamDir(e.Name()), "config.json")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteTeam removes the team's directory tree and clears the active-team
// pointer if it referenced the team.
func (s *Store) DeleteTeam(name string) error {
	if err := os.RemoveAll(s.teamDir(name)); err != nil {
		return fmt.Errorf("delete team %q: %w", name, err)
	}
	if active, err := s.ActiveTeam(); err == nil && active == name {
		if err := os.Remove(filepath.Join(s.root, "active-team")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear active team pointer: %w", err)
		}
	}
	return nil
}

// PutTask writes one task file.
func (s *Store) PutTask(teamName string, task *team.Task) error {
	if err := os.MkdirAll(s.tasksDir(teamName), 0o755); err != nil {
		return fmt.Errorf("create tasks dir for %q: %w", teamName, err)
	}
	return writeJSON(filepath.Join(s.tasksDir(teamName), task.ID+".json"), task)
}

// GetTask reads one task file, returning (nil, nil) when absent.
func (s *Store) GetTask(teamName, id string) (*team.Task, error) {
	var t team.Task
	ok, err := readJSON(filepath.Join(s.tasksDir(teamName), id+".json"), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// ListTasks reads all task files of a team in id order.
func (s *Store) ListTasks(teamName string) ([]*team.Task, error) {
	entries, err := os.ReadDir(s.tasksDir(teamName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tasks of %q: %w", teamName, err)
	}

	var tasks []*team.Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var t team.Task
		ok, err := readJSON(filepath.Join(s.tasksDir(teamName), e.Name()), &t)
		if err != nil {
			return nil, err
		}
		if ok {
			task := t
			tasks = append(tasks, &task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return idLess(tasks[i].ID, tasks[j].ID) })
	return tasks, nil
}

// DeleteTask removes one task file.
func (s *Store) DeleteTask(teamName, id string) error {
	err := os.Remove(filepath.Join(s.tasksDir(teamName), id+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete task %q: %w", id, err)
	}
	return nil
}

// SetActiveTeam writes the explicit current-team pointer file.
func (s *Store) SetActiveTeam(name string) error {
	return writeFileAtomic(filepath.Join(s.root, "active-team"), []byte(name+"\n"))
}

// ActiveTeam reads the pointer file, returning "" when unset.
func (s *Store) ActiveTeam() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "active-team"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read active team pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// AppendInbox appends one raw message to an agent's inbox file.
func (s *Store) AppendInbox(agentID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.inboxPath(agentID)
	var msgs []json.RawMessage
	if _, err := readJSON(path, &msgs); err != nil {
		return err
	}
	msgs = append(msgs, raw)
	return writeJSON(path, msgs)
}

// DrainInbox reads and removes an agent's inbox file.
func (s *Store) DrainInbox(agentID string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.inboxPath(agentID)
	var msgs []json.RawMessage
	ok, err := readJSON(path, &msgs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("clear inbox of %q: %w", agentID, err)
	}
	return msgs, nil
}

func (s *Store) inboxPath(agentID string) string {
	return filepath.Join(s.root, "inboxes", sanitize(agentID)+".json")
}

// sanitize keeps inbox filenames inside the inboxes directory even for
// hostile agent ids.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// readJSON decodes path into v, returning (false, nil) when the file does
// not exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON encodes v and writes it atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a temp file plus rename so readers never see a
// partial write.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
