// Package dispatcher implements the Tool Dispatcher (spec §4.8): agent
// name resolution, a join gate for mutating tools, auto-heartbeat, a
// name->handler registry, and audit/log observability. Grounded on
// collab.Register's handler table and
// collab.PiggybackMiddleware/AgentNameForClient (agent-name resolution
// chain), reimplemented as a registry independent of mcp-go's server
// object.
package dispatcher

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// IdentityStore persists the session-scoped and terminal-session identity
// files the resolution chain falls back to.
type IdentityStore interface {
	// Load returns the persisted agent name for key, or "" if none.
	Load(key string) (string, error)
	// Save persists name under key.
	Save(key, name string) error
}

// sessionKey and terminalKey namespace IdentityStore keys so the two
// fallback tiers never collide.
func sessionKey(sessionID string) string  { return "session:" + sessionID }
func terminalKey(terminalID string) string { return "terminal:" + terminalID }

// ResolveAgentName implements spec §4.8's resolution chain: explicit
// argument, then session-scoped identity file, then terminal-session
// identity file, then a freshly generated agent-<uuid8>, persisted back to
// the session-scoped path so subsequent calls on the same session resolve
// consistently.
func ResolveAgentName(store IdentityStore, explicit, sessionID, terminalID string) (string, error) {
	if explicit != "" {
		if sessionID != "" {
			store.Save(sessionKey(sessionID), explicit)
		}
		return explicit, nil
	}

	if sessionID != "" {
		if name, err := store.Load(sessionKey(sessionID)); err != nil {
			return "", err
		} else if name != "" {
			return name, nil
		}
	}

	if terminalID != "" {
		if name, err := store.Load(terminalKey(terminalID)); err != nil {
			return "", err
		} else if name != "" {
			if sessionID != "" {
				store.Save(sessionKey(sessionID), name)
			}
			return name, nil
		}
	}

	generated := "agent-" + uuid.NewString()[:8]
	if sessionID != "" {
		if err := store.Save(sessionKey(sessionID), generated); err != nil {
			return "", err
		}
	}
	return generated, nil
}

// TerminalSessionID derives a best-effort stable identifier for the current
// terminal (tty + controlling process), used as the last fallback tier
// before generating a random identity. Returns "" when no terminal is
// attached (e.g. piped stdio under a supervisor).
func TerminalSessionID() string {
	if tty, err := os.Readlink("/proc/self/fd/0"); err == nil && strings.HasPrefix(tty, "/dev/") {
		return tty
	}
	return ""
}
