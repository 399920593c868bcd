package masctools

import (
	"strings"
	"testing"

	"github.com/jaakkos/masc/internal/dispatcher"
	"github.com/jaakkos/masc/internal/lockmanager"
	"github.com/jaakkos/masc/internal/planning"
	"github.com/jaakkos/masc/internal/registry"
	"github.com/jaakkos/masc/internal/room"
	"github.com/jaakkos/masc/internal/storage"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	base := t.TempDir()
	roomStore, err := room.NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	roomStore.AuditEnabled = false
	if _, err := roomStore.Init("test-project"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	backend := storage.NewFileBackend(roomStore.Paths.Dir())
	planningStore := planning.New(func(taskID string) string {
		return roomStore.Paths.PlanningDir(taskID)
	})

	return Deps{
		Room:     roomStore,
		Registry: registry.New(nil),
		Locks:    lockmanager.New(backend),
		Planning: planningStore,
		Presence: PresenceConfig{ZombieAfterSeconds: 600},
	}
}

func newTestDispatcher(t *testing.T, deps Deps) *dispatcher.Dispatcher {
	t.Helper()
	d := dispatcher.New(&fileIdentityStoreStub{}, deps.Room, nil, nil)
	d.IsJoined = func(string) bool { return true }
	Register(d, deps)
	return d
}

// fileIdentityStoreStub is a minimal in-memory IdentityStore for tests that
// don't exercise identity resolution itself.
type fileIdentityStoreStub struct {
	data map[string]string
}

func (s *fileIdentityStoreStub) Load(key string) (string, error) {
	if s.data == nil {
		return "", nil
	}
	return s.data[key], nil
}

func (s *fileIdentityStoreStub) Save(key, name string) error {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = name
	return nil
}

func TestAddTaskAndListTasks(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("add_task", map[string]any{"agent_name": "alice", "title": "Write docs"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("add_task failed: %s", res.Text)
	}

	res = d.Dispatch("list_tasks", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "Write docs") {
		t.Fatalf("list_tasks = %+v", res)
	}
}

func TestClaimNextAndTransitionLifecycle(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	d.Dispatch("add_task", map[string]any{"agent_name": "alice", "title": "Ship feature"}, dispatcher.AgentContext{})

	res := d.Dispatch("claim_next", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "Claimed task-") {
		t.Fatalf("claim_next = %+v", res)
	}

	res = d.Dispatch("masc_transition", map[string]any{"agent_name": "alice", "task_id": "task-001", "action": "start"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("start transition failed: %s", res.Text)
	}

	res = d.Dispatch("masc_transition", map[string]any{"agent_name": "alice", "task_id": "task-001", "action": "complete", "notes": "done"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("complete transition failed: %s", res.Text)
	}
}

func TestSendAndReadMessages(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("send_message", map[string]any{"agent_name": "alice", "content": "hello room"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("send_message failed: %s", res.Text)
	}

	res = d.Dispatch("read_messages", map[string]any{"agent_name": "bob"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "hello room") {
		t.Fatalf("read_messages = %+v", res)
	}
}

func TestLockFileLockUnlockCheck(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("lock_file", map[string]any{"agent_name": "alice", "resource": "main.go", "action": "lock"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("lock failed: %s", res.Text)
	}

	res = d.Dispatch("lock_file", map[string]any{"agent_name": "bob", "resource": "main.go", "action": "check"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "locked by alice") {
		t.Fatalf("check = %+v", res)
	}

	res = d.Dispatch("lock_file", map[string]any{"agent_name": "alice", "resource": "main.go", "action": "unlock"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("unlock failed: %s", res.Text)
	}
}

func TestPlanningToolsRoundTrip(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("set_plan", map[string]any{"agent_name": "alice", "task_id": "task-001", "plan": "do the thing"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("set_plan failed: %s", res.Text)
	}

	res = d.Dispatch("append_note", map[string]any{"agent_name": "alice", "task_id": "task-001", "note": "progress update"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("append_note failed: %s", res.Text)
	}

	res = d.Dispatch("log_error", map[string]any{"agent_name": "alice", "task_id": "task-001", "error_type": "build", "message": "compile failed"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("log_error failed: %s", res.Text)
	}

	res = d.Dispatch("resolve_error", map[string]any{"agent_name": "alice", "task_id": "task-001", "index": 0}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("resolve_error failed: %s", res.Text)
	}

	res = d.Dispatch("get_plan", map[string]any{"agent_name": "alice", "task_id": "task-001"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "do the thing") {
		t.Fatalf("get_plan = %+v", res)
	}
}

func TestWorkContextGetUpdate(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("masc_get_work_context", map[string]any{"agent_name": "alice", "task_id": "task-001"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "No work context") {
		t.Fatalf("masc_get_work_context (empty) = %+v", res)
	}

	res = d.Dispatch("masc_update_work_context", map[string]any{
		"agent_name": "alice", "task_id": "task-001", "key": "findings", "value": "uses CAS versioning",
	}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("masc_update_work_context failed: %s", res.Text)
	}

	res = d.Dispatch("masc_get_work_context", map[string]any{"agent_name": "alice", "task_id": "task-001"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "uses CAS versioning") {
		t.Fatalf("masc_get_work_context = %+v", res)
	}
}

func TestAppendSessionNote(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("masc_append_session_note", map[string]any{
		"agent_name": "alice", "content": "switching to file-backed locks", "category": "decision",
	}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "#1") {
		t.Fatalf("masc_append_session_note = %+v", res)
	}

	notes, err := deps.Room.ListSessionNotes()
	if err != nil {
		t.Fatalf("ListSessionNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Category != "decision" {
		t.Fatalf("notes = %+v", notes)
	}
}

func TestJoinLeaveListAgents(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	res := d.Dispatch("join", map[string]any{"agent_name": "alice", "agent_type": "claude-code"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("join failed: %s", res.Text)
	}

	res = d.Dispatch("list_agents", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "alice") {
		t.Fatalf("list_agents = %+v", res)
	}

	res = d.Dispatch("leave", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("leave failed: %s", res.Text)
	}
}

func TestHeartbeatAndGetStatuses(t *testing.T) {
	deps := newTestDeps(t)
	d := newTestDispatcher(t, deps)

	d.Dispatch("join", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	res := d.Dispatch("heartbeat", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success {
		t.Fatalf("heartbeat failed: %s", res.Text)
	}

	res = d.Dispatch("get_statuses", map[string]any{"agent_name": "alice"}, dispatcher.AgentContext{})
	if !res.Success || !strings.Contains(res.Text, "alice") {
		t.Fatalf("get_statuses = %+v", res)
	}
}
