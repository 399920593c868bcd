// Package registry implements the Session Registry (spec §4.3): in-memory
// agent presence, per-agent mailboxes, and rate limiting. Grounded on
// app.SessionRegistry, generalized from a pure session<->agent map into the
// full spec'd registry.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

type agentState struct {
	mailbox     []domain.Message
	listening   bool
	lastSeen    time.Time
	cond        *sync.Cond
	unregCh     chan struct{}
}

// Registry tracks ephemeral per-agent state: mailbox, listening flag, and
// last-activity timestamp. No entity here is durable; durable agent records
// live in the Room Store.
type Registry struct {
	mu      sync.Mutex
	agents  map[string]*agentState
	limiter *RateLimiter
}

// New creates an empty Registry with the given rate limiter configuration.
func New(limiter *RateLimiter) *Registry {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultCategories())
	}
	return &Registry{agents: make(map[string]*agentState), limiter: limiter}
}

func (r *Registry) stateLocked(name string) *agentState {
	st, ok := r.agents[name]
	if !ok {
		st = &agentState{lastSeen: time.Now(), unregCh: make(chan struct{})}
		st.cond = sync.NewCond(&r.mu)
		r.agents[name] = st
	}
	return st
}

// Register is idempotent: registering an already-registered agent is a
// no-op beyond touching LastSeen.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateLocked(name).lastSeen = time.Now()
}

// Unregister is idempotent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.agents[name]; ok {
		close(st.unregCh)
		delete(r.agents, name)
	}
}

// IsRegistered reports whether name currently has in-memory session state.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[name]
	return ok
}

// Touch updates LastSeen for name, auto-registering if unknown.
func (r *Registry) Touch(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateLocked(name).lastSeen = time.Now()
}

// LastSeen returns the last-activity time recorded for name, or the zero
// value if name has never been registered.
func (r *Registry) LastSeen(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.agents[name]; ok {
		return st.lastSeen
	}
	return time.Time{}
}

// PushMessage appends msg to the mailbox of every registered agent except
// its sender when mention=="" (broadcast), or only to the mentioned agent's
// mailbox.
func (r *Registry) PushMessage(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.Mention != "" {
		if st, ok := r.agents[msg.Mention]; ok {
			st.mailbox = append(st.mailbox, msg)
			st.cond.Broadcast()
		}
		return
	}
	for name, st := range r.agents {
		if name == msg.FromAgent {
			continue
		}
		st.mailbox = append(st.mailbox, msg)
		st.cond.Broadcast()
	}
}

// PopMessage non-blockingly dequeues the oldest pending message for name.
func (r *Registry) PopMessage(name string) (domain.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.agents[name]
	if !ok || len(st.mailbox) == 0 {
		return domain.Message{}, false
	}
	msg := st.mailbox[0]
	st.mailbox = st.mailbox[1:]
	return msg, true
}

// WaitForMessage cooperatively waits up to timeout for a mailbox arrival,
// honoring ctx cancellation. While waiting, the agent's status is reported
// as "listening" via IsListening; this is restored on return.
func (r *Registry) WaitForMessage(ctx context.Context, name string, timeout time.Duration) (domain.Message, bool) {
	if timeout <= 0 {
		msg, ok := r.PopMessage(name)
		return msg, ok
	}

	deadline := time.Now().Add(timeout)

	r.mu.Lock()
	st := r.stateLocked(name)
	st.listening = true
	defer func() {
		r.mu.Lock()
		if cur, ok := r.agents[name]; ok && cur == st {
			st.listening = false
		}
		r.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		st.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	timer := time.AfterFunc(time.Until(deadline), func() {
		r.mu.Lock()
		st.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	for len(st.mailbox) == 0 {
		select {
		case <-ctx.Done():
			r.mu.Unlock()
			return domain.Message{}, false
		default:
		}
		if time.Now().After(deadline) {
			r.mu.Unlock()
			return domain.Message{}, false
		}
		st.cond.Wait()
	}
	msg := st.mailbox[0]
	st.mailbox = st.mailbox[1:]
	r.mu.Unlock()
	return msg, true
}

// IsListening reports whether name is currently blocked in WaitForMessage.
func (r *Registry) IsListening(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.agents[name]
	return ok && st.listening
}

// CheckRateLimit checks and consumes a token for name in the given category.
func (r *Registry) CheckRateLimit(name, category string, role Role) (allowed bool, waitSeconds float64) {
	return r.limiter.Check(name, category, role)
}

// AgentStatus is a snapshot row for get_statuses().
type AgentStatus struct {
	Name        string
	Listening   bool
	LastSeen    time.Time
	IsZombie    bool
}

// GetStatuses returns a snapshot of every registered agent's liveness.
func (r *Registry) GetStatuses(zombieThreshold time.Duration) []AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := make([]AgentStatus, 0, len(r.agents))
	for name, st := range r.agents {
		out = append(out, AgentStatus{
			Name:      name,
			Listening: st.listening,
			LastSeen:  st.lastSeen,
			IsZombie:  now.Sub(st.lastSeen) > zombieThreshold,
		})
	}
	return out
}
