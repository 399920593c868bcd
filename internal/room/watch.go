// Cross-process wake-up for the Event Bus / wait_for_message (spec §4.2,
// the cooperative-refresh half of §4.3's WaitForMessage): a goroutine watches
// the room's base directory with fsnotify and signals a callback whenever
// state.json, backlog.json, or a message file changes, so agents running as
// separate OS processes (not just separate goroutines in one server) still
// observe each other's writes without polling. Falls back to a plain poll
// loop if fsnotify fails to initialize, matching the teacher's Notifier.
package room

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollFallbackInterval is how often Watch re-checks state when fsnotify is
// unavailable (e.g. over certain network filesystems).
const pollFallbackInterval = 2 * time.Second

// Watch runs until ctx is cancelled, invoking onChange (debounced, best
// effort) whenever a file under the room base is created, written, or
// removed. onChange must not block.
func (s *Store) Watch(ctx context.Context, onChange func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.pollLoop(ctx, onChange)
		return
	}
	defer watcher.Close()

	dirs := []string{s.Paths.Dir(), s.Paths.AgentsDir(), s.Paths.MessagesDir()}
	added := false
	for _, d := range dirs {
		if watcher.Add(d) == nil {
			added = true
		}
	}
	if !added {
		s.pollLoop(ctx, onChange)
		return
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(50*time.Millisecond, onChange)
			} else {
				debounce.Reset(50 * time.Millisecond)
			}
		case <-watcher.Errors:
			// fsnotify surfaces transient errors (e.g. a removed watched
			// directory); keep watching rather than tearing down the loop.
		}
	}
}

func (s *Store) pollLoop(ctx context.Context, onChange func()) {
	ticker := time.NewTicker(pollFallbackInterval)
	defer ticker.Stop()
	var lastSeq int
	if st, err := s.LoadState(); err == nil {
		lastSeq = st.MessageSeq
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := s.LoadState()
			if err != nil {
				continue
			}
			if st.MessageSeq != lastSeq {
				lastSeq = st.MessageSeq
				onChange()
			}
		}
	}
}
