package main

import (
	"bufio"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jaakkos/masc/internal/dispatcher"
	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/mcpproto"
	"github.com/jaakkos/masc/internal/planning"
	"github.com/jaakkos/masc/internal/room"
)

// buildResourceCatalog wires the full masc:// resource scheme (spec §6.5) to
// the Room Store and Planning Store. current is read back for each
// masc://who request so the resource reflects whichever session issued it,
// the same AgentContext RegisterMethods' actxFor closure resolves against.
// tools is the room's own filtered tool list, the same one tools/list
// answers with, so masc://schema mirrors what the client already sees.
func buildResourceCatalog(roomStore *room.Store, planningStore *planning.Store, identityStore dispatcher.IdentityStore, current *dispatcher.AgentContext, tools []mcp.Tool) *mcpproto.ResourceCatalog {
	catalog := &mcpproto.ResourceCatalog{
		Resources: []mcpproto.Resource{
			{URI: "masc://status", Name: "Room status", Description: "Room state, active agents, and recent session notes", MIMEType: "application/json"},
			{URI: "masc://status.json", Name: "Room status", Description: "Alias of masc://status", MIMEType: "application/json"},
			{URI: "masc://tasks", Name: "Backlog", Description: "Current task backlog", MIMEType: "application/json"},
			{URI: "masc://tasks.json", Name: "Backlog", Description: "Alias of masc://tasks", MIMEType: "application/json"},
			{URI: "masc://who", Name: "Caller identity", Description: "The agent identity resolved for the calling session", MIMEType: "application/json"},
			{URI: "masc://who.json", Name: "Caller identity", Description: "Alias of masc://who", MIMEType: "application/json"},
			{URI: "masc://agents", Name: "Agents", Description: "All room participants", MIMEType: "application/json"},
			{URI: "masc://agents.json", Name: "Agents", Description: "Alias of masc://agents", MIMEType: "application/json"},
			{URI: "masc://messages", Name: "Messages", Description: "Room messages, most recent first; ?since_seq= and ?limit= narrow the window", MIMEType: "application/json"},
			{URI: "masc://messages.json", Name: "Messages", Description: "Alias of masc://messages", MIMEType: "application/json"},
			{URI: "masc://events", Name: "Audit events", Description: "Audit log entries, most recent first; ?limit= bounds the count", MIMEType: "application/json"},
			{URI: "masc://events.json", Name: "Audit events", Description: "Alias of masc://events", MIMEType: "application/json"},
			{URI: "masc://worktrees", Name: "Worktrees", Description: "Per-task worktree info (empty: no WorktreeInfoProvider is wired, spec Non-goal)", MIMEType: "application/json"},
			{URI: "masc://worktrees.json", Name: "Worktrees", Description: "Alias of masc://worktrees", MIMEType: "application/json"},
			{URI: "masc://schema", Name: "Tool schema catalog", Description: "The full, unfiltered tool schema catalog", MIMEType: "application/json"},
			{URI: "masc://schema.json", Name: "Tool schema catalog", Description: "Alias of masc://schema", MIMEType: "application/json"},
		},
		Templates: []mcpproto.ResourceTemplate{
			{
				URITemplate: "masc://workcontext/{task_id}.json",
				Name:        "Work context",
				Description: "Shared work context for a task (relevant files, background, constraints, shared notes)",
				MIMEType:    "application/json",
			},
		},
	}

	catalog.Read = func(id string, query url.Values) (string, string, bool) {
		switch strings.TrimSuffix(id, ".json") {
		case "status":
			return readStatus(roomStore)
		case "tasks":
			return readBacklog(roomStore)
		case "who":
			return readWho(identityStore, *current, query)
		case "agents":
			return readAgents(roomStore)
		case "messages":
			return readMessages(roomStore, query)
		case "events":
			return readEvents(roomStore, query)
		case "worktrees":
			return readWorktrees()
		case "schema":
			return readSchema(tools)
		default:
			if strings.HasPrefix(id, "workcontext/") && strings.HasSuffix(id, ".json") {
				taskID := strings.TrimSuffix(strings.TrimPrefix(id, "workcontext/"), ".json")
				return readWorkContext(planningStore, taskID)
			}
			return "", "", false
		}
	}

	return catalog
}

func marshalOK(v any) (string, string, bool) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", "", false
	}
	return string(data), "application/json", true
}

func readStatus(roomStore *room.Store) (string, string, bool) {
	state, err := roomStore.LoadState()
	if err != nil {
		return "", "", false
	}
	notes, err := roomStore.ListSessionNotes()
	if err != nil {
		notes = nil
	}
	agents, err := roomStore.ListAgents()
	if err != nil {
		agents = nil
	}
	return marshalOK(map[string]any{
		"room_state":    state,
		"agents":        agents,
		"session_notes": notes,
	})
}

func readBacklog(roomStore *room.Store) (string, string, bool) {
	backlog, err := roomStore.LoadBacklog()
	if err != nil {
		return "", "", false
	}
	return marshalOK(backlog)
}

// readWho resolves the same identity chain Dispatch uses (explicit
// agent_name query param, then session id, then terminal id), so
// masc://who?agent_name=x and a plain masc://who from an already-identified
// session both answer without requiring a tool call first.
func readWho(identityStore dispatcher.IdentityStore, actx dispatcher.AgentContext, query url.Values) (string, string, bool) {
	name, err := dispatcher.ResolveAgentName(identityStore, query.Get("agent_name"), actx.SessionID, actx.TerminalID)
	if err != nil {
		return "", "", false
	}
	return marshalOK(map[string]any{
		"agent_name": name,
		"session_id": actx.SessionID,
	})
}

func readAgents(roomStore *room.Store) (string, string, bool) {
	agents, err := roomStore.ListAgents()
	if err != nil {
		return "", "", false
	}
	return marshalOK(map[string]any{"agents": agents})
}

// readMessages presents the window most-recent-first, per spec §8
// scenario S2 ("world" before "hello" for limit=2 after broadcasting
// "hello" then "world"). ListMessages itself stays oldest-first, since
// read_messages uses it to let an agent catch up in chronological order.
func readMessages(roomStore *room.Store, query url.Values) (string, string, bool) {
	sinceSeq, _ := strconv.Atoi(query.Get("since_seq"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	msgs, err := roomStore.ListMessages(sinceSeq, limit)
	if err != nil {
		return "", "", false
	}
	reversed := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		reversed[len(msgs)-1-i] = m
	}
	return marshalOK(map[string]any{"messages": reversed})
}

// readEvents tails the audit log (JSON-lines, spec §6.3), returning up to
// limit entries (default 100) in most-recent-first order.
func readEvents(roomStore *room.Store, query url.Values) (string, string, bool) {
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	f, err := os.Open(roomStore.Paths.AuditLog())
	if err != nil {
		if os.IsNotExist(err) {
			return marshalOK(map[string]any{"events": []domain.Event{}})
		}
		return "", "", false
	}
	defer f.Close()

	var events []domain.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev domain.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip corrupt/partial lines rather than fail the read
		}
		events = append(events, ev)
	}

	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	reversed := make([]domain.Event, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}
	return marshalOK(map[string]any{"events": reversed})
}

// readWorktrees always answers with an empty list: worktree management is a
// spec Non-goal, specified only via the dispatcher.WorktreeInfoProvider
// seam, which this server does not implement.
func readWorktrees() (string, string, bool) {
	return marshalOK(map[string]any{"worktrees": []any{}})
}

func readSchema(tools []mcp.Tool) (string, string, bool) {
	return marshalOK(map[string]any{"tools": tools})
}

func readWorkContext(planningStore *planning.Store, taskID string) (string, string, bool) {
	if taskID == "" {
		return "", "", false
	}
	wc, err := planningStore.GetWorkContext(taskID)
	if err != nil || wc == nil {
		return "", "", false
	}
	return marshalOK(wc)
}
