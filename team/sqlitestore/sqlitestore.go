// Package sqlitestore persists team state in a single sqlite database. It
// targets hosts that want durable coordination state without a directory
// tree: WAL mode plus a busy timeout let multiple in-process writers retry
// instead of failing with SQLITE_BUSY. Team and task records are stored as
// JSON documents keyed by name/id, matching the keyed-store contract.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/agentcrew/team"
	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed team.Store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and runs migrations.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			name        TEXT PRIMARY KEY,
			config      TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			team_name   TEXT NOT NULL REFERENCES teams(name),
			id          TEXT NOT NULL,
			record      TEXT NOT NULL,
			PRIMARY KEY (team_name, id)
		)`,
		`CREATE TABLE IF NOT EXISTS inbox (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    TEXT NOT NULL,
			message     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_agent ON inbox(agent_id, seq)`,
		`CREATE TABLE IF NOT EXISTS pointers (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// PutTeam upserts the team config document.
func (s *Store) PutTeam(t *team.Team) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode team %q: %w", t.Name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO teams (name, config) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET config = excluded.config`,
		t.Name, string(doc))
	if err != nil {
		return fmt.Errorf("save team %q: %w", t.Name, err)
	}
	return nil
}

// GetTeam loads a team config, returning (nil, nil) when absent.
func (s *Store) GetTeam(name string) (*team.Team, error) {
	var doc string
	err := s.db.QueryRow(`SELECT config FROM teams WHERE name = ?`, name).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team %q: %w", name, err)
	}
	var t team.Team
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("decode team %q: %w", name, err)
	}
	return &t, nil
}

// ListTeams returns all team names.
func (s *Store) ListTeams() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan team name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteTeam removes the team, its tasks and the pointer if it referenced it.
func (s *Store) DeleteTeam(name string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE team_name = ?`, name); err != nil {
		return fmt.Errorf("delete tasks of %q: %w", name, err)
	}
	if _, err := s.db.Exec(`DELETE FROM teams WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete team %q: %w", name, err)
	}
	_, err := s.db.Exec(`DELETE FROM pointers WHERE key = 'active-team' AND value = ?`, name)
	if err != nil {
		return fmt.Errorf("clear active team pointer: %w", err)
	}
	return nil
}

// PutTask upserts one task document.
func (s *Store) PutTask(teamName string, task *team.Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %q: %w", task.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (team_name, id, record) VALUES (?, ?, ?)
		ON CONFLICT(team_name, id) DO UPDATE SET record = excluded.record`,
		teamName, task.ID, string(doc))
	if err != nil {
		return fmt.Errorf("save task %q: %w", task.ID, err)
	}
	return nil
}

// GetTask loads one task document, returning (nil, nil) when absent.
func (s *Store) GetTask(teamName, id string) (*team.Task, error) {
	var doc string
	err := s.db.QueryRow(`SELECT record FROM tasks WHERE team_name = ? AND id = ?`, teamName, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %q: %w", id, err)
	}
	var t team.Task
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("decode task %q: %w", id, err)
	}
	return &t, nil
}

// ListTasks loads all task documents of a team ordered by numeric id where
// possible.
func (s *Store) ListTasks(teamName string) ([]*team.Task, error) {
	rows, err := s.db.Query(`
		SELECT record FROM tasks WHERE team_name = ?
		ORDER BY CAST(id AS INTEGER), id`, teamName)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %q: %w", teamName, err)
	}
	defer rows.Close()

	var tasks []*team.Task
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t team.Task
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes one task row.
func (s *Store) DeleteTask(teamName, id string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE team_name = ? AND id = ?`, teamName, id); err != nil {
		return fmt.Errorf("delete task %q: %w", id, err)
	}
	return nil
}

// SetActiveTeam upserts the current-team pointer.
func (s *Store) SetActiveTeam(name string) error {
	_, err := s.db.Exec(`
		INSERT INTO pointers (key, value) VALUES ('active-team', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, name)
	if err != nil {
		return fmt.Errorf("set active team: %w", err)
	}
	return nil
}

// ActiveTeam reads the current-team pointer, returning "" when unset.
func (s *Store) ActiveTeam() (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT value FROM pointers WHERE key = 'active-team'`).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active team: %w", err)
	}
	return name, nil
}

// AppendInbox appends one encoded message to an agent's inbox.
func (s *Store) AppendInbox(agentID string, raw json.RawMessage) error {
	if _, err := s.db.Exec(`INSERT INTO inbox (agent_id, message) VALUES (?, ?)`, agentID, string(raw)); err != nil {
		return fmt.Errorf("append inbox of %q: %w", agentID, err)
	}
	return nil
}

// DrainInbox returns and deletes an agent's pending messages in delivery
// order.
func (s *Store) DrainInbox(agentID string) ([]json.RawMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin drain: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT message FROM inbox WHERE agent_id = ? ORDER BY seq`, agentID)
	if err != nil {
		return nil, fmt.Errorf("read inbox of %q: %w", agentID, err)
	}
	var msgs []json.RawMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inbox message: %w", err)
		}
		msgs = append(msgs, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.Exec(`DELETE FROM inbox WHERE agent_id = ?`, agentID); err != nil {
		return nil, fmt.Errorf("clear inbox of %q: %w", agentID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drain: %w", err)
	}
	return msgs, nil
}
