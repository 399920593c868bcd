package dispatcher

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jaakkos/masc/internal/eventbus"
	"github.com/jaakkos/masc/internal/room"
)

// Handler is one tool's implementation: it destructures arguments and
// returns a human-readable response. Returning an error is equivalent to
// (false, err.Error()) — the Dispatcher maps it for the caller.
type Handler func(agent string, arguments map[string]any) (string, error)

// Registration describes one named tool: its handler, whether it mutates
// room state (and therefore must pass the join gate), and which rate-limit
// category it is metered under. Category is only consulted for mutating
// tools; an empty Category falls back to "general".
type Registration struct {
	Handler  Handler
	Mutates  bool
	Category string
}

// Result is the Tool Dispatcher's uniform return shape, per spec §4.8.
type Result struct {
	Success bool
	Text    string
}

// Dispatcher routes (name, arguments, agent_context) to a registered
// handler, resolving agent identity, gating mutations on room membership,
// auto-heartbeating, and emitting audit events. Grounded on collab.Register
// and collab.PiggybackMiddleware, reimplemented as a name->handler registry
// independent of mcp-go's server object (spec §9 registry redesign flag).
type Dispatcher struct {
	handlers map[string]Registration
	identity IdentityStore
	room     *room.Store
	bus      *eventbus.Bus
	logger   *log.Logger

	// IsJoined reports whether agent currently has a room presence record.
	IsJoined func(agent string) bool
	// AutoRegister registers agent as a room participant, called when a
	// write tool is invoked by an agent with no presence record yet.
	AutoRegister func(agent string) error
	// Touch updates last_seen for agent; called for every call that passes
	// the tool lookup, join gate, and rate limit, before the handler runs.
	Touch func(agent string)
	// CheckRateLimit consumes one rate-limit token for agent in category,
	// checked before a mutating tool is accepted (spec §5, §4.3, §4.8). A
	// refusal short-circuits Dispatch before Touch and the handler run. The
	// check comes after the join gate, so an AutoRegister call made earlier
	// in the same Dispatch is kept when the call is then refused. Nil
	// disables rate limiting.
	CheckRateLimit func(agent, category string) (allowed bool, waitSeconds float64)
}

// New builds a Dispatcher. logger may be nil to discard log lines.
func New(identity IdentityStore, roomStore *room.Store, bus *eventbus.Bus, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(noopWriter{}, "", 0)
	}
	return &Dispatcher{
		handlers: make(map[string]Registration),
		identity: identity,
		room:     roomStore,
		bus:      bus,
		logger:   logger,
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Register adds one named tool handler. Registering the same name twice
// replaces the prior registration.
func (d *Dispatcher) Register(name string, reg Registration) {
	d.handlers[name] = reg
}

// AgentContext carries the caller-supplied identity hints a single
// dispatched call resolves against.
type AgentContext struct {
	SessionID  string
	TerminalID string
}

// Dispatch resolves the calling agent, applies the join gate and
// auto-heartbeat, invokes the named handler, and emits an audit event.
// Unknown tool names and handler panics are both mapped to a failed Result
// rather than propagated.
func (d *Dispatcher) Dispatch(name string, arguments map[string]any, actx AgentContext) Result {
	explicit, _ := arguments["agent_name"].(string)
	agent, err := ResolveAgentName(d.identity, explicit, actx.SessionID, actx.TerminalID)
	if err != nil {
		return d.finish(agent, name, false, fmt.Sprintf("identity resolution failed: %v", err))
	}

	reg, ok := d.handlers[name]
	if !ok {
		return d.finish(agent, name, false, "Unknown tool: "+name)
	}

	if reg.Mutates {
		if d.IsJoined != nil && !d.IsJoined(agent) {
			if d.AutoRegister != nil {
				if err := d.AutoRegister(agent); err != nil {
					return d.finish(agent, name, false, fmt.Sprintf("agent %q is not joined and auto-registration failed: %v", agent, err))
				}
			} else {
				return d.finish(agent, name, false, fmt.Sprintf("agent %q must join the room before calling %s", agent, name))
			}
		}
	}

	if reg.Mutates && d.CheckRateLimit != nil {
		category := reg.Category
		if category == "" {
			category = "general"
		}
		if allowed, wait := d.CheckRateLimit(agent, category); !allowed {
			return d.finish(agent, name, false, fmt.Sprintf("rate limit exceeded for %s (category %s), retry in %.1fs", name, category, wait))
		}
	}

	if d.Touch != nil {
		d.Touch(agent)
	}

	start := time.Now()
	text, err := d.invoke(reg.Handler, agent, arguments)
	duration := time.Since(start)

	success := err == nil
	if err != nil {
		text = err.Error()
	}
	d.logger.Printf("tool_call agent=%s tool=%s success=%t duration=%s preview=%q",
		agent, name, success, duration, previewLine(text))

	return d.finish(agent, name, success, text)
}

// invoke runs handler, converting a panic into an error so one misbehaving
// handler cannot take down the dispatcher loop.
func (d *Dispatcher) invoke(h Handler, agent string, arguments map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(agent, arguments)
}

func (d *Dispatcher) finish(agent, tool string, success bool, text string) Result {
	if d.bus != nil {
		d.bus.Publish(agent, "tool_call", success, map[string]any{"tool": tool})
	}
	return Result{Success: success, Text: text}
}

// previewLine collapses newlines and truncates to 80 runes, per spec
// §4.8's "first 80 chars of the result, newlines collapsed" log summary.
func previewLine(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return string(runes)
}

// StringArg extracts a required string argument, or an error naming the
// missing field.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%q is required", key)
	}
	return v, nil
}

// OptionalStringArg extracts an optional string argument, defaulting to "".
func OptionalStringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// IntArg extracts a required integer argument, accepting both JSON numbers
// (float64) and numeric strings for convenience.
func IntArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%q must be an integer: %v", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%q is required", key)
	}
}

// OptionalIntArg extracts an optional integer argument, defaulting to def.
func OptionalIntArg(args map[string]any, key string, def int) int {
	n, err := IntArg(args, key)
	if err != nil {
		return def
	}
	return n
}
