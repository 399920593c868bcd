// Package masctools implements the MASC tool handlers the Tool Dispatcher
// routes to: send_message/read_messages/wait_for_message, the backlog
// operations, lock_file, the planning tools, and agent presence/health.
// Grounded on tools/collab/*.go's handler bodies, adapted from mcp-go's
// (ctx, CallToolRequest)->(*CallToolResult, error) shape to
// dispatcher.Handler's (agent, arguments)->(string, error) shape, and from
// CollabService's single in-memory+JSON-file state to the Room Store plus
// the Task Engine, Resource Lock Manager, Planning Store, and Session
// Registry components.
package masctools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/dispatcher"
	"github.com/jaakkos/masc/internal/lockmanager"
	"github.com/jaakkos/masc/internal/planning"
	"github.com/jaakkos/masc/internal/registry"
	"github.com/jaakkos/masc/internal/room"
	"github.com/jaakkos/masc/internal/taskengine"
)

// Deps bundles the components tool handlers read and write.
type Deps struct {
	Room     *room.Store
	Registry *registry.Registry
	Locks    *lockmanager.Manager
	Planning *planning.Store
	Presence PresenceConfig
}

// PresenceConfig mirrors config.PresenceConfig without importing the config
// package, keeping masctools independent of room-wide settings plumbing.
type PresenceConfig struct {
	ZombieAfterSeconds int
}

// Register installs every tool handler onto d, matching each registration's
// Mutates flag to the corresponding schema.Entry and its Category to the
// rate-limit bucket spec §4.3 assigns that tool.
func Register(d *dispatcher.Dispatcher, deps Deps) {
	d.Register("send_message", dispatcher.Registration{Mutates: true, Category: "broadcast", Handler: deps.sendMessage})
	d.Register("read_messages", dispatcher.Registration{Mutates: false, Handler: deps.readMessages})
	d.Register("wait_for_message", dispatcher.Registration{Mutates: true, Category: "broadcast", Handler: deps.waitForMessage})

	d.Register("add_task", dispatcher.Registration{Mutates: true, Category: "task-ops", Handler: deps.addTask})
	d.Register("list_tasks", dispatcher.Registration{Mutates: false, Handler: deps.listTasks})
	d.Register("claim_next", dispatcher.Registration{Mutates: true, Category: "task-ops", Handler: deps.claimNext})
	d.Register("masc_transition", dispatcher.Registration{Mutates: true, Category: "task-ops", Handler: deps.transition})

	d.Register("lock_file", dispatcher.Registration{Mutates: true, Category: "file-lock", Handler: deps.lockFile})

	d.Register("set_plan", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.setPlan})
	d.Register("get_plan", dispatcher.Registration{Mutates: false, Handler: deps.getPlan})
	d.Register("append_note", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.appendNote})
	d.Register("log_error", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.logError})
	d.Register("resolve_error", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.resolveError})
	d.Register("set_deliverable", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.setDeliverable})
	d.Register("masc_get_work_context", dispatcher.Registration{Mutates: false, Handler: deps.getWorkContext})
	d.Register("masc_update_work_context", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.updateWorkContext})
	d.Register("masc_append_session_note", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.appendSessionNote})

	d.Register("join", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.join})
	d.Register("leave", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.leave})
	d.Register("list_agents", dispatcher.Registration{Mutates: false, Handler: deps.listAgents})

	d.Register("heartbeat", dispatcher.Registration{Mutates: true, Category: "general", Handler: deps.heartbeat})
	d.Register("get_statuses", dispatcher.Registration{Mutates: false, Handler: deps.getStatuses})
}

// --- messaging --------------------------------------------------------

func (deps Deps) sendMessage(agent string, args map[string]any) (string, error) {
	content, err := dispatcher.StringArg(args, "content")
	if err != nil {
		return "", err
	}
	mention := dispatcher.OptionalStringArg(args, "mention")

	st, err := deps.Room.LoadState()
	if err != nil {
		return "", fmt.Errorf("load room state: %w", err)
	}
	seq := st.MessageSeq + 1
	msgType := "broadcast"
	if mention != "" {
		msgType = "mention"
	}
	msg := domain.Message{
		Seq:       seq,
		FromAgent: agent,
		Type:      msgType,
		Content:   content,
		Mention:   mention,
		Timestamp: time.Now(),
	}
	if err := deps.Room.SaveMessage(msg); err != nil {
		return "", fmt.Errorf("persist message: %w", err)
	}
	st.MessageSeq = seq
	if err := deps.Room.SaveState(st); err != nil {
		return "", fmt.Errorf("save room state: %w", err)
	}

	deps.Registry.PushMessage(msg)

	if mention != "" {
		return fmt.Sprintf("Message #%d sent to %s", seq, mention), nil
	}
	return fmt.Sprintf("Message #%d broadcast", seq), nil
}

func (deps Deps) readMessages(agent string, args map[string]any) (string, error) {
	sinceSeq := dispatcher.OptionalIntArg(args, "since_seq", 0)
	limit := dispatcher.OptionalIntArg(args, "limit", 0)

	msgs, err := deps.Room.ListMessages(sinceSeq, limit)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	relevant := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.FromAgent == agent {
			continue
		}
		if m.Mention != "" && m.Mention != agent {
			continue
		}
		relevant = append(relevant, m)
	}

	if len(relevant) == 0 {
		return "No messages", nil
	}
	var sb strings.Builder
	for _, m := range relevant {
		fmt.Fprintf(&sb, "#%d [%s] %s: %s\n", m.Seq, m.Timestamp.Format(time.RFC3339), m.FromAgent, m.Content)
	}
	return sb.String(), nil
}

func (deps Deps) waitForMessage(agent string, args map[string]any) (string, error) {
	timeoutSeconds := dispatcher.OptionalIntArg(args, "timeout_seconds", 30)
	timeout := time.Duration(timeoutSeconds) * time.Second

	msg, ok := deps.Registry.WaitForMessage(context.Background(), agent, timeout)
	if !ok {
		return "No message arrived before the timeout", nil
	}
	return fmt.Sprintf("#%d [%s] %s: %s", msg.Seq, msg.Timestamp.Format(time.RFC3339), msg.FromAgent, msg.Content), nil
}

// --- backlog ------------------------------------------------------------

func (deps Deps) addTask(agent string, args map[string]any) (string, error) {
	title, err := dispatcher.StringArg(args, "title")
	if err != nil {
		return "", err
	}
	description := dispatcher.OptionalStringArg(args, "description")
	worktree := dispatcher.OptionalStringArg(args, "worktree")
	priority := dispatcher.OptionalIntArg(args, "priority", 3)
	expectedVersion := int64(dispatcher.OptionalIntArg(args, "expected_version", 0))

	b, err := deps.Room.LoadBacklog()
	if err != nil {
		return "", fmt.Errorf("load backlog: %w", err)
	}
	task, err := taskengine.AddTask(b, expectedVersion, title, description, priority, worktree)
	if err != nil {
		return "", err
	}
	if err := deps.Room.SaveBacklog(b); err != nil {
		return "", fmt.Errorf("save backlog: %w", err)
	}
	return fmt.Sprintf("Added %s (priority %d): %s", task.ID, task.Priority, task.Title), nil
}

func (deps Deps) listTasks(agent string, args map[string]any) (string, error) {
	status := strings.ToLower(dispatcher.OptionalStringArg(args, "status"))
	b, err := deps.Room.LoadBacklog()
	if err != nil {
		return "", fmt.Errorf("load backlog: %w", err)
	}

	tasks := make([]domain.Task, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		if status != "" && status != "all" && string(t.Status.Kind) != status {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })

	if len(tasks) == 0 {
		return "No tasks", nil
	}
	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "%s [%s] p%d %s\n", t.ID, t.Status.Summary(), t.Priority, t.Title)
	}
	return sb.String(), nil
}

func (deps Deps) claimNext(agent string, args map[string]any) (string, error) {
	expectedVersion := int64(dispatcher.OptionalIntArg(args, "expected_version", 0))

	b, err := deps.Room.LoadBacklog()
	if err != nil {
		return "", fmt.Errorf("load backlog: %w", err)
	}
	task, err := taskengine.ClaimNext(b, expectedVersion, agent)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "No claimable tasks", nil
	}
	if err := deps.Room.SaveBacklog(b); err != nil {
		return "", fmt.Errorf("save backlog: %w", err)
	}
	return fmt.Sprintf("Claimed %s: %s", task.ID, task.Title), nil
}

func (deps Deps) transition(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	action, err := dispatcher.StringArg(args, "action")
	if err != nil {
		return "", err
	}
	expectedVersion := int64(dispatcher.OptionalIntArg(args, "expected_version", 0))

	b, err := deps.Room.LoadBacklog()
	if err != nil {
		return "", fmt.Errorf("load backlog: %w", err)
	}

	var result string
	switch action {
	case "claim":
		if _, err := taskengine.Claim(b, expectedVersion, taskID, agent); err != nil {
			return "", err
		}
		result = fmt.Sprintf("%s claimed by %s", taskID, agent)
	case "start":
		if _, err := taskengine.Start(b, expectedVersion, taskID, agent); err != nil {
			return "", err
		}
		result = fmt.Sprintf("%s started", taskID)
	case "complete":
		notes := dispatcher.OptionalStringArg(args, "notes")
		if _, err := taskengine.Complete(b, expectedVersion, taskID, agent, notes); err != nil {
			return "", err
		}
		result = fmt.Sprintf("%s completed", taskID)
	case "cancel":
		reason := dispatcher.OptionalStringArg(args, "reason")
		if _, err := taskengine.Cancel(b, expectedVersion, taskID, agent, reason); err != nil {
			return "", err
		}
		result = fmt.Sprintf("%s cancelled", taskID)
	case "release":
		if _, err := taskengine.Release(b, expectedVersion, taskID, agent); err != nil {
			return "", err
		}
		result = fmt.Sprintf("%s released back to todo", taskID)
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}

	if err := deps.Room.SaveBacklog(b); err != nil {
		return "", fmt.Errorf("save backlog: %w", err)
	}
	return result, nil
}

// --- file locks -----------------------------------------------------------

func (deps Deps) lockFile(agent string, args map[string]any) (string, error) {
	resource, err := dispatcher.StringArg(args, "resource")
	if err != nil {
		return "", err
	}
	action := dispatcher.OptionalStringArg(args, "action")
	if action == "" {
		action = "lock"
	}

	switch action {
	case "lock":
		reason := dispatcher.OptionalStringArg(args, "reason")
		minutes := dispatcher.OptionalIntArg(args, "duration_minutes", int(lockmanager.DefaultDuration/time.Minute))
		duration := time.Duration(minutes) * time.Minute
		lock, err := deps.Locks.Lock(resource, agent, reason, duration)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Locked %s until %s", resource, lock.ExpiresAt.Format(time.RFC3339)), nil
	case "unlock":
		force, _ := args["force"].(bool)
		if err := deps.Locks.Unlock(resource, agent, force); err != nil {
			return "", err
		}
		return fmt.Sprintf("Unlocked %s", resource), nil
	case "check":
		lock, err := deps.Locks.Check(resource)
		if err != nil {
			return fmt.Sprintf("%s is not locked", resource), nil
		}
		return fmt.Sprintf("%s is locked by %s until %s", resource, lock.Owner, lock.ExpiresAt.Format(time.RFC3339)), nil
	default:
		return "", fmt.Errorf("unknown lock_file action %q", action)
	}
}

// --- planning ------------------------------------------------------------

func (deps Deps) setPlan(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	plan, err := dispatcher.StringArg(args, "plan")
	if err != nil {
		return "", err
	}
	if _, err := deps.Planning.SetPlan(taskID, plan); err != nil {
		return "", err
	}
	return fmt.Sprintf("Plan set for %s", taskID), nil
}

func (deps Deps) getPlan(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	ctx, err := deps.Planning.Get(taskID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %s\n", ctx.TaskPlan)
	fmt.Fprintf(&sb, "Notes: %d\n", len(ctx.Notes))
	fmt.Fprintf(&sb, "Errors: %d\n", len(ctx.Errors))
	fmt.Fprintf(&sb, "Deliverable: %s\n", ctx.Deliverable)
	return sb.String(), nil
}

func (deps Deps) appendNote(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	note, err := dispatcher.StringArg(args, "note")
	if err != nil {
		return "", err
	}
	if _, err := deps.Planning.AppendNote(taskID, note); err != nil {
		return "", err
	}
	return "Note appended", nil
}

func (deps Deps) logError(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	errType, err := dispatcher.StringArg(args, "error_type")
	if err != nil {
		return "", err
	}
	message, err := dispatcher.StringArg(args, "message")
	if err != nil {
		return "", err
	}
	errCtx := dispatcher.OptionalStringArg(args, "context")
	if _, err := deps.Planning.LogError(taskID, errType, message, errCtx); err != nil {
		return "", err
	}
	return "Error logged", nil
}

func (deps Deps) resolveError(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	index, err := dispatcher.IntArg(args, "index")
	if err != nil {
		return "", err
	}
	if _, err := deps.Planning.ResolveError(taskID, index); err != nil {
		return "", err
	}
	return "Error resolved", nil
}

func (deps Deps) setDeliverable(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	deliverable, err := dispatcher.StringArg(args, "deliverable")
	if err != nil {
		return "", err
	}
	if _, err := deps.Planning.SetDeliverable(taskID, deliverable); err != nil {
		return "", err
	}
	return "Deliverable set", nil
}

func (deps Deps) getWorkContext(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	wc, err := deps.Planning.GetWorkContext(taskID)
	if err != nil {
		return "", err
	}
	if wc == nil {
		return fmt.Sprintf("No work context for %s", taskID), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Background: %s\n", wc.Background)
	fmt.Fprintf(&sb, "Relevant files: %s\n", strings.Join(wc.RelevantFiles, ", "))
	fmt.Fprintf(&sb, "Constraints: %s\n", strings.Join(wc.Constraints, ", "))
	for k, v := range wc.SharedNotes {
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	return sb.String(), nil
}

func (deps Deps) updateWorkContext(agent string, args map[string]any) (string, error) {
	taskID, err := dispatcher.StringArg(args, "task_id")
	if err != nil {
		return "", err
	}
	key, err := dispatcher.StringArg(args, "key")
	if err != nil {
		return "", err
	}
	value, err := dispatcher.StringArg(args, "value")
	if err != nil {
		return "", err
	}
	parentTaskID := dispatcher.OptionalStringArg(args, "parent_task_id")
	if _, err := deps.Planning.UpdateWorkContext(taskID, parentTaskID, key, value); err != nil {
		return "", err
	}
	return fmt.Sprintf("Work context for %s updated: %s", taskID, key), nil
}

func (deps Deps) appendSessionNote(agent string, args map[string]any) (string, error) {
	content, err := dispatcher.StringArg(args, "content")
	if err != nil {
		return "", err
	}
	category := dispatcher.OptionalStringArg(args, "category")
	if category == "" {
		category = "note"
	}
	note, err := deps.Room.AppendSessionNote(agent, content, category)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Session note #%d recorded (%s)", note.ID, note.Category), nil
}

// --- presence --------------------------------------------------------------

func (deps Deps) join(agent string, args map[string]any) (string, error) {
	agentType := dispatcher.OptionalStringArg(args, "agent_type")
	var caps []string
	if raw, ok := args["capabilities"].([]any); ok {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				caps = append(caps, s)
			}
		}
	}

	existing, err := deps.Room.LoadAgent(agent)
	if err != nil {
		return "", fmt.Errorf("load agent: %w", err)
	}
	now := time.Now()
	a := domain.Agent{
		Name:         agent,
		AgentType:    agentType,
		Status:       domain.AgentActive,
		Capabilities: caps,
		JoinedAt:     now,
		LastSeen:     now,
	}
	if existing != nil {
		a.JoinedAt = existing.JoinedAt
	}
	if err := deps.Room.SaveAgent(&a); err != nil {
		return "", fmt.Errorf("save agent: %w", err)
	}
	deps.Registry.Register(agent)
	return fmt.Sprintf("%s joined the room", agent), nil
}

func (deps Deps) leave(agent string, args map[string]any) (string, error) {
	if err := deps.Room.DeleteAgent(agent); err != nil {
		return "", fmt.Errorf("delete agent: %w", err)
	}
	deps.Registry.Unregister(agent)
	return fmt.Sprintf("%s left the room", agent), nil
}

func (deps Deps) listAgents(agent string, args map[string]any) (string, error) {
	agents, err := deps.Room.ListAgents()
	if err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return "No agents joined", nil
	}
	var sb strings.Builder
	for _, a := range agents {
		fmt.Fprintf(&sb, "%s (%s) last_seen=%s\n", a.Name, a.AgentType, a.LastSeen.Format(time.RFC3339))
	}
	return sb.String(), nil
}

// --- health ----------------------------------------------------------------

func (deps Deps) heartbeat(agent string, args map[string]any) (string, error) {
	a, err := deps.Room.LoadAgent(agent)
	if err != nil {
		return "", fmt.Errorf("load agent: %w", err)
	}
	if a == nil {
		return "", fmt.Errorf("agent %q has not joined", agent)
	}
	a.LastSeen = time.Now()
	if err := deps.Room.SaveAgent(a); err != nil {
		return "", fmt.Errorf("save agent: %w", err)
	}
	deps.Registry.Touch(agent)
	return "Heartbeat recorded", nil
}

func (deps Deps) getStatuses(agent string, args map[string]any) (string, error) {
	zombieAfter := time.Duration(deps.Presence.ZombieAfterSeconds) * time.Second
	if zombieAfter <= 0 {
		zombieAfter = 10 * time.Minute
	}
	statuses := deps.Registry.GetStatuses(zombieAfter)
	if len(statuses) == 0 {
		return "No agents registered", nil
	}
	var sb strings.Builder
	for _, s := range statuses {
		zombie := ""
		if s.IsZombie {
			zombie = " ZOMBIE"
		}
		fmt.Fprintf(&sb, "%s listening=%t last_seen=%s%s\n", s.Name, s.Listening, s.LastSeen.Format(time.RFC3339), zombie)
	}
	return sb.String(), nil
}
