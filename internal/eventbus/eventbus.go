// Package eventbus implements the Event Bus (spec §4.7): durable JSON-line
// audit events (delegated to the Room Store's AppendEvent) plus a live SSE
// fan-out hub. New overall — the teacher only logs via *log.Logger with no
// durable audit trail or push channel — grounded on the shape of
// logger.Printf call sites across tools/collab/*.go (generalized into
// structured events) and on cmd/mcp-server/main.go's sessionStore
// subscriber-set-with-mutex pattern for the hub.
package eventbus

import (
	"sync"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

// Appender persists one audit event; satisfied by *room.Store.AppendEvent.
type Appender interface {
	AppendEvent(ev domain.Event) error
}

// Bus appends every published event to a durable Appender and fans it out
// to live subscribers (SSE streams).
type Bus struct {
	appender Appender

	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
}

// New builds a Bus that persists through appender.
func New(appender Appender) *Bus {
	return &Bus{appender: appender, subscribers: make(map[chan domain.Event]struct{})}
}

// Publish appends ev (if persistence is enabled) and delivers it to every
// live subscriber. A slow or closed subscriber is dropped rather than
// blocking the publisher.
func (b *Bus) Publish(agent, eventType string, success bool, detail map[string]any) error {
	ev := domain.Event{Timestamp: time.Now(), Agent: agent, EventType: eventType, Success: success, Detail: detail}
	err := b.appender.AppendEvent(ev)

	b.mu.Lock()
	dead := make([]chan domain.Event, 0)
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			dead = append(dead, ch)
		}
	}
	for _, ch := range dead {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()

	return err
}

// Subscribe registers a new live listener with the given buffer depth and
// returns a channel of events plus an unsubscribe function. Callers must
// call unsubscribe (normally via defer) to release the channel; the bus
// also detaches a subscriber automatically on send failure (buffer full),
// and unsubscribe is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (events <-chan domain.Event, unsubscribe func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan domain.Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
}

// NotifyExternalChange fans out a synthetic event to live subscribers
// without appending to the durable audit log, used when the Room Store's
// cross-process file watcher observes a write from another OS process
// rather than a Publish call in this one.
func (b *Bus) NotifyExternalChange() {
	ev := domain.Event{Timestamp: time.Now(), EventType: "external_change", Success: true}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of live SSE listeners, used for
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
