// Package storetest exercises the team.Store contract against any backend.
// Each store package runs this suite plus its own backend-specific tests.
package storetest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/protocol"
	"github.com/hupe1980/agentcrew/team"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) team.Store

// Run executes the store conformance suite against stores built by fn.
func Run(t *testing.T, fn Factory) {
	t.Run("TeamRoundTrip", func(t *testing.T) { testTeamRoundTrip(t, fn(t)) })
	t.Run("AbsentRecordsAreNil", func(t *testing.T) { testAbsentRecords(t, fn(t)) })
	t.Run("TaskOrdering", func(t *testing.T) { testTaskOrdering(t, fn(t)) })
	t.Run("TaskUpsertAndDelete", func(t *testing.T) { testTaskUpsertAndDelete(t, fn(t)) })
	t.Run("ActiveTeamPointer", func(t *testing.T) { testActiveTeamPointer(t, fn(t)) })
	t.Run("DeleteTeamClearsPointer", func(t *testing.T) { testDeleteTeamClearsPointer(t, fn(t)) })
	t.Run("InboxDeliveryOrder", func(t *testing.T) { testInboxDeliveryOrder(t, fn(t)) })
	t.Run("CoordinationScenario", func(t *testing.T) { testCoordinationScenario(t, fn(t)) })
}

func sampleTeam(name string) *team.Team {
	return &team.Team{
		Name:        name,
		Description: "store conformance fixture",
		CreatedAt:   time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		LeadAgentID: "lead-1",
		Phase:       team.PhasePlanning,
		Members: []team.Member{{
			AgentID:  "lead-1",
			Name:     "lead",
			Role:     team.RoleCoordinator,
			JoinedAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			Status:   team.StatusActive,
		}},
		Settings: team.Settings{MaxMembers: 10},
	}
}

func testTeamRoundTrip(t *testing.T, s team.Store) {
	in := sampleTeam("round-trip")
	require.NoError(t, s.PutTeam(in))

	out, err := s.GetTeam("round-trip")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.LeadAgentID, out.LeadAgentID)
	assert.Equal(t, in.Phase, out.Phase)
	require.Len(t, out.Members, 1)
	assert.Equal(t, "lead-1", out.Members[0].AgentID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))

	// Put is an upsert: a second write replaces the record.
	in.Phase = team.PhaseExecution
	require.NoError(t, s.PutTeam(in))
	out, err = s.GetTeam("round-trip")
	require.NoError(t, err)
	assert.Equal(t, team.PhaseExecution, out.Phase)

	names, err := s.ListTeams()
	require.NoError(t, err)
	assert.Equal(t, []string{"round-trip"}, names)
}

func testAbsentRecords(t *testing.T, s team.Store) {
	got, err := s.GetTeam("nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	task, err := s.GetTask("nope", "1")
	require.NoError(t, err)
	assert.Nil(t, task)

	active, err := s.ActiveTeam()
	require.NoError(t, err)
	assert.Empty(t, active)

	msgs, err := s.DrainInbox("nobody")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testTaskOrdering(t *testing.T, s team.Store) {
	require.NoError(t, s.PutTeam(sampleTeam("ordered")))

	// Insert out of order, including a double-digit id that breaks
	// lexicographic sorting.
	for _, id := range []string{"10", "2", "1"} {
		require.NoError(t, s.PutTask("ordered", &team.Task{ID: id, Subject: "task " + id, Status: team.TaskPending}))
	}

	tasks, err := s.ListTasks("ordered")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	ids := []string{tasks[0].ID, tasks[1].ID, tasks[2].ID}
	assert.Equal(t, []string{"1", "2", "10"}, ids)
}

func testTaskUpsertAndDelete(t *testing.T, s team.Store) {
	require.NoError(t, s.PutTeam(sampleTeam("tasked")))

	task := &team.Task{ID: "1", Subject: "original", Status: team.TaskPending, BlockedBy: []string{"2"}}
	require.NoError(t, s.PutTask("tasked", task))

	task.Subject = "rewritten"
	task.Status = team.TaskInProgress
	task.Owner = "member-2"
	require.NoError(t, s.PutTask("tasked", task))

	got, err := s.GetTask("tasked", "1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rewritten", got.Subject)
	assert.Equal(t, team.TaskInProgress, got.Status)
	assert.Equal(t, "member-2", got.Owner)
	assert.Equal(t, []string{"2"}, got.BlockedBy)

	require.NoError(t, s.DeleteTask("tasked", "1"))
	got, err = s.GetTask("tasked", "1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent task is not an error.
	assert.NoError(t, s.DeleteTask("tasked", "1"))
}

func testActiveTeamPointer(t *testing.T, s team.Store) {
	require.NoError(t, s.PutTeam(sampleTeam("first")))
	require.NoError(t, s.PutTeam(sampleTeam("second")))

	require.NoError(t, s.SetActiveTeam("first"))
	active, err := s.ActiveTeam()
	require.NoError(t, err)
	assert.Equal(t, "first", active)

	require.NoError(t, s.SetActiveTeam("second"))
	active, err = s.ActiveTeam()
	require.NoError(t, err)
	assert.Equal(t, "second", active)
}

func testDeleteTeamClearsPointer(t *testing.T, s team.Store) {
	require.NoError(t, s.PutTeam(sampleTeam("doomed")))
	require.NoError(t, s.PutTask("doomed", &team.Task{ID: "1", Subject: "orphan", Status: team.TaskPending}))
	require.NoError(t, s.SetActiveTeam("doomed"))

	require.NoError(t, s.DeleteTeam("doomed"))

	got, err := s.GetTeam("doomed")
	require.NoError(t, err)
	assert.Nil(t, got)
	active, err := s.ActiveTeam()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func testInboxDeliveryOrder(t *testing.T, s team.Store) {
	for i, content := range []string{"first", "second", "third"} {
		raw, err := protocol.Marshal(protocol.Chat{
			Header:  protocol.NewHeader("lead-1"),
			To:      "member-2",
			Content: content,
		})
		require.NoError(t, err, "message %d", i)
		require.NoError(t, s.AppendInbox("member-2", raw))
	}

	raws, err := s.DrainInbox("member-2")
	require.NoError(t, err)
	require.Len(t, raws, 3)
	for i, want := range []string{"first", "second", "third"} {
		var decoded struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.Unmarshal(raws[i], &decoded))
		assert.Equal(t, want, decoded.Content)
	}

	// Drain clears; a second drain is empty.
	raws, err = s.DrainInbox("member-2")
	require.NoError(t, err)
	assert.Empty(t, raws)
}

// testCoordinationScenario runs the full task-completion flow through a
// Manager bound to the backend, so every store observes identical semantics.
func testCoordinationScenario(t *testing.T, s team.Store) {
	m := team.NewManager(s)

	_, err := m.CreateTeam("lead-1", "lead", "alpha", "", "lead", "")
	require.NoError(t, err)
	_, err = m.AddMember(team.Member{AgentID: "member-2", Name: "worker"})
	require.NoError(t, err)

	_, err = m.CreateTask(team.Task{ID: "1", Subject: "downstream", BlockedBy: []string{"2"}})
	require.NoError(t, err)
	_, err = m.CreateTask(team.Task{ID: "2", Subject: "upstream", Owner: "member-2"})
	require.NoError(t, err)

	report, err := m.TaskCompleted("member-2")
	require.NoError(t, err)
	require.NotNil(t, report.Task)
	assert.Equal(t, "2", report.Task.ID)
	assert.Equal(t, []string{"1"}, report.Unblocked)

	summaries, err := m.ListTasks()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, sum := range summaries {
		if sum.ID == "1" {
			assert.Empty(t, sum.BlockedBy)
		}
	}

	msgs, err := m.DrainInbox("lead-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	done, ok := msgs[0].(protocol.TaskCompleted)
	require.True(t, ok)
	assert.Equal(t, "2", done.TaskID)
	assert.Equal(t, protocol.KindIdleNotification, msgs[1].Kind())
}
