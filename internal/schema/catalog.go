// Package schema defines the MASC tool catalog: one mcp.Tool schema per
// dispatcher handler, grouped into the feature categories spec §6 names
// (core, comm, portal, worktree, health, discovery, voting, interrupt,
// cost, auth, ratelimit, encryption) and filtered per room by the active
// feature mode. Grounded on the mcp.NewTool/.With* call shapes used
// throughout tools/collab/*.go, generalized from one fixed registration
// list into a mode-filterable catalog.
package schema

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jaakkos/masc/internal/config"
)

// Category names a tool grouping from spec §6.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryComm         Category = "comm"
	CategoryPortal       Category = "portal"
	CategoryWorktree     Category = "worktree"
	CategoryHealth       Category = "health"
	CategoryDiscovery    Category = "discovery"
	CategoryVoting       Category = "voting"
	CategoryInterrupt    Category = "interrupt"
	CategoryCost         Category = "cost"
	CategoryAuth         Category = "auth"
	CategoryRateLimit    Category = "ratelimit"
	CategoryEncryption   Category = "encryption"
)

// Entry pairs a tool schema with the category gating its visibility and
// whether calling it mutates room state (the dispatcher's join-gate flag).
type Entry struct {
	Tool     mcp.Tool
	Category Category
	Mutates  bool
}

// modePresets maps each non-custom FeatureMode to its enabled categories,
// per spec §6.
var modePresets = map[config.FeatureMode][]Category{
	config.ModeMinimal:  {CategoryCore},
	config.ModeSolo:     {CategoryCore, CategoryPortal, CategoryHealth},
	config.ModeStandard: {CategoryCore, CategoryComm, CategoryPortal, CategoryHealth, CategoryDiscovery},
	config.ModeFull: {
		CategoryCore, CategoryComm, CategoryPortal, CategoryWorktree, CategoryHealth,
		CategoryDiscovery, CategoryVoting, CategoryInterrupt, CategoryCost, CategoryAuth,
		CategoryRateLimit, CategoryEncryption,
	},
}

// Catalog is the full registry of MASC tool schemas.
type Catalog struct {
	entries []Entry
}

// NewCatalog builds the full (unfiltered) catalog; call Filtered to narrow
// it to one room's active feature mode.
func NewCatalog() *Catalog {
	return &Catalog{entries: defaultEntries()}
}

// Filtered returns the entries enabled under mode. A ModeCustom room uses
// customCategories verbatim; any other unrecognized mode falls back to
// ModeStandard's preset.
func (c *Catalog) Filtered(mode config.FeatureMode, customCategories []string) []Entry {
	var enabled map[Category]bool
	if mode == config.ModeCustom {
		enabled = make(map[Category]bool, len(customCategories))
		for _, cat := range customCategories {
			enabled[Category(cat)] = true
		}
	} else {
		preset, ok := modePresets[mode]
		if !ok {
			preset = modePresets[config.ModeStandard]
		}
		enabled = make(map[Category]bool, len(preset))
		for _, cat := range preset {
			enabled[cat] = true
		}
	}

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if enabled[e.Category] {
			out = append(out, e)
		}
	}
	return out
}

// FilteredTools is a convenience wrapper returning just the mcp.Tool
// schemas for tools/list.
func (c *Catalog) FilteredTools(mode config.FeatureMode, customCategories []string) []mcp.Tool {
	entries := c.Filtered(mode, customCategories)
	tools := make([]mcp.Tool, len(entries))
	for i, e := range entries {
		tools[i] = e.Tool
	}
	return tools
}

// MutatesLookup returns a name->mutates map for wiring into the
// dispatcher's Registration.Mutates field.
func (c *Catalog) MutatesLookup() map[string]bool {
	out := make(map[string]bool, len(c.entries))
	for _, e := range c.entries {
		out[e.Tool.Name] = e.Mutates
	}
	return out
}

// RoomCatalog binds a Catalog to one room's feature mode, implementing
// mcpproto.ToolCatalog's List() method.
type RoomCatalog struct {
	Catalog          *Catalog
	Mode             config.FeatureMode
	CustomCategories []string
}

// List returns the tool schemas enabled for this room.
func (r RoomCatalog) List() []mcp.Tool {
	return r.Catalog.FilteredTools(r.Mode, r.CustomCategories)
}

func defaultEntries() []Entry {
	return []Entry{
		{Category: CategoryComm, Mutates: true, Tool: mcp.NewTool("send_message",
			mcp.WithDescription("Broadcast or mention a message to other agents in the room."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier (resolved automatically if omitted)")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
			mcp.WithString("mention", mcp.Description("Agent name to target; omit to broadcast to everyone")),
		)},
		{Category: CategoryComm, Mutates: false, Tool: mcp.NewTool("read_messages",
			mcp.WithDescription("Read messages addressed to you or broadcast since a sequence number."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithNumber("since_seq", mcp.Description("Only return messages with seq greater than this (default 0)")),
			mcp.WithNumber("limit", mcp.Description("Cap the number of messages returned (default unlimited)")),
		)},
		{Category: CategoryComm, Mutates: true, Tool: mcp.NewTool("wait_for_message",
			mcp.WithDescription("Block until a message arrives or the timeout elapses."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Max seconds to wait (default 30)")),
		)},

		{Category: CategoryCore, Mutates: true, Tool: mcp.NewTool("add_task",
			mcp.WithDescription("Add a task to the shared backlog."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short task title")),
			mcp.WithString("description", mcp.Description("Detailed task description")),
			mcp.WithNumber("priority", mcp.Description("1 (highest) .. 5 (lowest), default 3")),
			mcp.WithString("worktree", mcp.Description("Worktree or workspace this task is scoped to")),
			mcp.WithNumber("expected_version", mcp.Description("Backlog version this call expects (optimistic concurrency)")),
		)},
		{Category: CategoryCore, Mutates: false, Tool: mcp.NewTool("list_tasks",
			mcp.WithDescription("List the shared backlog, optionally filtered by status."),
			mcp.WithString("status", mcp.Description("todo, claimed, in_progress, done, cancelled, or all (default all)")),
		)},
		{Category: CategoryCore, Mutates: true, Tool: mcp.NewTool("claim_next",
			mcp.WithDescription("Claim the highest effective-priority Todo task in the backlog."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithNumber("expected_version", mcp.Description("Backlog version this call expects")),
		)},
		{Category: CategoryCore, Mutates: true, Tool: mcp.NewTool("masc_transition",
			mcp.WithDescription("Transition a task: claim, start, complete, cancel, or release."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id, e.g. task-003")),
			mcp.WithString("action", mcp.Required(), mcp.Enum("claim", "start", "complete", "cancel", "release"), mcp.Description("Transition to apply")),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithString("notes", mcp.Description("Completion notes (action=complete)")),
			mcp.WithString("reason", mcp.Description("Cancellation reason (action=cancel)")),
			mcp.WithNumber("expected_version", mcp.Description("Backlog version this call expects")),
		)},

		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("lock_file",
			mcp.WithDescription("Manage advisory resource locks. Actions: lock, unlock, check."),
			mcp.WithString("action", mcp.Enum("lock", "unlock", "check"), mcp.Description("Action to perform (default lock)")),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithString("resource", mcp.Required(), mcp.Description("Resource identifier (typically a file path)")),
			mcp.WithString("reason", mcp.Description("Why you're locking this resource")),
			mcp.WithNumber("duration_minutes", mcp.Description("Lock duration in minutes (default 30, max 120)")),
			mcp.WithBoolean("force", mcp.Description("Force unlock even if held by another agent")),
		)},

		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("set_plan",
			mcp.WithDescription("Set a task's plan text."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("plan", mcp.Required(), mcp.Description("Plan text")),
		)},
		{Category: CategoryPortal, Mutates: false, Tool: mcp.NewTool("get_plan",
			mcp.WithDescription("Read a task's planning context (plan, notes, errors, deliverable)."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		)},
		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("append_note",
			mcp.WithDescription("Append a running note to a task's planning context."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("note", mcp.Required(), mcp.Description("Note text")),
		)},
		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("log_error",
			mcp.WithDescription("Log an error entry against a task."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("error_type", mcp.Required(), mcp.Description("Short error category")),
			mcp.WithString("message", mcp.Required(), mcp.Description("Error message")),
			mcp.WithString("context", mcp.Description("Surrounding context (file, line, stack)")),
		)},
		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("resolve_error",
			mcp.WithDescription("Mark a logged error resolved by index."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based error index")),
		)},
		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("set_deliverable",
			mcp.WithDescription("Set a task's deliverable summary."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("deliverable", mcp.Required(), mcp.Description("Deliverable summary text")),
		)},
		{Category: CategoryPortal, Mutates: false, Tool: mcp.NewTool("masc_get_work_context",
			mcp.WithDescription("Get the shared work context for a task (relevant files, background, constraints, shared notes). Use this before starting assigned work to stay in scope."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		)},
		{Category: CategoryPortal, Mutates: true, Tool: mcp.NewTool("masc_update_work_context",
			mcp.WithDescription("Record a shared note (findings, decisions, constraints) in a task's work context for other agents to see."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("key", mcp.Required(), mcp.Description("Note key, e.g. findings, decisions")),
			mcp.WithString("value", mcp.Required(), mcp.Description("Note content")),
			mcp.WithString("parent_task_id", mcp.Description("Parent task id to inherit context from, if this context is new")),
		)},
		{Category: CategoryComm, Mutates: true, Tool: mcp.NewTool("masc_append_session_note",
			mcp.WithDescription("Append a lightweight room-wide decision, question, or blocker note."),
			mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
			mcp.WithString("category", mcp.Description("decision, note, question, or blocker (default note)")),
		)},

		{Category: CategoryDiscovery, Mutates: true, Tool: mcp.NewTool("join",
			mcp.WithDescription("Join the room as a participating agent."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
			mcp.WithString("agent_type", mcp.Description("Agent implementation, e.g. claude-code, codex")),
			mcp.WithArray("capabilities", mcp.Description("Capability tags, e.g. code-edit, code-review")),
		)},
		{Category: CategoryDiscovery, Mutates: true, Tool: mcp.NewTool("leave",
			mcp.WithDescription("Leave the room: removes your agent record and presence. Locks you hold are not released."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
		)},
		{Category: CategoryDiscovery, Mutates: false, Tool: mcp.NewTool("list_agents",
			mcp.WithDescription("List currently joined agents and their presence."),
		)},
		{Category: CategoryHealth, Mutates: true, Tool: mcp.NewTool("heartbeat",
			mcp.WithDescription("Refresh your agent's last-seen timestamp."),
			mcp.WithString("agent_name", mcp.Description("Your agent identifier")),
		)},
		{Category: CategoryHealth, Mutates: false, Tool: mcp.NewTool("get_statuses",
			mcp.WithDescription("Report every agent's liveness, flagging zombies whose last activity is older than the zombie threshold."),
		)},
	}
}
