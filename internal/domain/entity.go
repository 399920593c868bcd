// Package domain holds room entities and the aggregate documents the Room
// Store persists. It has no dependencies on other internal packages.
package domain

import "time"

// TaskStatusKind is the closed set of task lifecycle states.
type TaskStatusKind string

const (
	StatusTodo       TaskStatusKind = "todo"
	StatusClaimed    TaskStatusKind = "claimed"
	StatusInProgress TaskStatusKind = "in_progress"
	StatusDone       TaskStatusKind = "done"
	StatusCancelled  TaskStatusKind = "cancelled"
)

// TaskStatus is a tagged variant: exactly one of Todo, Claimed, InProgress,
// Done, Cancelled, matching the state machine in spec §3. Fields other than
// Kind are populated only for the variant they belong to.
type TaskStatus struct {
	Kind TaskStatusKind `json:"kind"`

	Assignee    string    `json:"assignee,omitempty"`
	ClaimedAt   time.Time `json:"claimed_at,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
	CancelledAt time.Time `json:"cancelled_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Todo returns the initial task status.
func Todo() TaskStatus { return TaskStatus{Kind: StatusTodo} }

// Summary renders a short human-readable form of the status, used in
// TaskInvalidState error messages ("current-state -> action" summaries).
func (s TaskStatus) Summary() string {
	switch s.Kind {
	case StatusClaimed:
		return "claimed(" + s.Assignee + ")"
	case StatusInProgress:
		return "in_progress(" + s.Assignee + ")"
	case StatusDone:
		return "done(" + s.Assignee + ")"
	case StatusCancelled:
		return "cancelled(" + s.CancelledBy + ")"
	default:
		return "todo"
	}
}

// Task is a shared unit of work in a room's backlog.
type Task struct {
	ID          string     `json:"id"` // "task-NNN"
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"` // 1 (highest) .. 5 (lowest)
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	Worktree    string     `json:"worktree,omitempty"`
}

// AgentStatus is the presence classification of a joined agent.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentBusy      AgentStatus = "busy"
	AgentListening AgentStatus = "listening"
	AgentInactive  AgentStatus = "inactive"
)

// Agent is a room participant.
type Agent struct {
	Name         string      `json:"name"`
	AgentType    string      `json:"agent_type"`
	Status       AgentStatus `json:"status"`
	Capabilities []string    `json:"capabilities,omitempty"`
	CurrentTask  string      `json:"current_task,omitempty"`
	JoinedAt     time.Time   `json:"joined_at"`
	LastSeen     time.Time   `json:"last_seen"`

	SessionID  string `json:"session_id,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	TTY        string `json:"tty,omitempty"`
	Worktree   string `json:"worktree,omitempty"`
	ParentTask string `json:"parent_task,omitempty"`

	// Driver marks the agent as the room's task-assignment driver
	// (supplemented from the teacher's driver/worker orchestration model).
	Driver bool `json:"driver,omitempty"`
}

// Message is a broadcast or mentioned message pushed through the Session
// Registry mailbox and persisted by the Room Store.
type Message struct {
	Seq       int       `json:"seq"`
	FromAgent string    `json:"from_agent"`
	Type      string    `json:"type"` // "broadcast" or "mention"
	Content   string    `json:"content"`
	Mention   string    `json:"mention,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ResourceLock is an advisory, TTL-based lock on a resource path/identifier.
type ResourceLock struct {
	Resource   string    `json:"resource"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock is past its TTL as of now.
func (l ResourceLock) Expired(now time.Time) bool { return now.After(l.ExpiresAt) }

// PlanningErrorEntry is one entry in a task's error log.
type PlanningErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Resolved  bool      `json:"resolved"`
}

// PlanningContext holds the per-task handover artifacts: plan, running notes,
// an error log, and a deliverable summary. Canonical state is this struct
// (persisted as context.json); task_plan.md, notes.md, errors.md, and
// deliverable.md are derived views rebuilt from it.
type PlanningContext struct {
	TaskID      string               `json:"task_id"`
	TaskPlan    string               `json:"task_plan"`
	Notes       []string             `json:"notes"`
	Errors      []PlanningErrorEntry `json:"errors"`
	Deliverable string               `json:"deliverable"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// WorkContext holds shared context for a task: relevant files, background,
// and constraints, inheritable by subtasks via ParentCtxID. Supplemented
// from the teacher's domain.WorkContext.
type WorkContext struct {
	ID            string            `json:"id"`
	TaskID        string            `json:"task_id"`
	RelevantFiles []string          `json:"relevant_files,omitempty"`
	Background    string            `json:"background,omitempty"`
	Constraints   []string          `json:"constraints,omitempty"`
	SharedNotes   map[string]string `json:"shared_notes,omitempty"`
	ParentCtxID   string            `json:"parent_ctx_id,omitempty"`
}

// SessionNote is a lightweight shared decision/question/blocker log entry,
// distinct from the structured PlanningContext notes. Supplemented from the
// teacher's domain.SessionNote.
type SessionNote struct {
	ID        int       `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Category  string    `json:"category"` // decision, note, question, blocker
	Timestamp time.Time `json:"timestamp"`
}

// PausedInfo records who paused a room, why, and when.
type PausedInfo struct {
	By     string    `json:"by"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RoomState is the single versioned document describing room-wide metadata.
type RoomState struct {
	ProtocolVersion string      `json:"protocol_version"`
	ProjectName     string      `json:"project_name"`
	MessageSeq      int         `json:"message_seq"` // monotonic, never decreases
	ActiveAgents    []string    `json:"active_agents"`
	Paused          *PausedInfo `json:"paused,omitempty"`
}

// Backlog is the ordered set of tasks with a monotonic version counter used
// for optimistic-concurrency (CAS) transitions.
type Backlog struct {
	Tasks       []Task    `json:"tasks"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int64     `json:"version"`
}

// Event is one append-only audit log line.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	EventType string         `json:"event_type"`
	Success   bool           `json:"success"`
	Detail    map[string]any `json:"detail,omitempty"`
}
