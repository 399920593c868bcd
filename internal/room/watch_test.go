package room

import (
	"context"
	"testing"
	"time"
)

func TestWatchNotifiesOnStateChange(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Init("demo"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notified := make(chan struct{}, 1)
	go s.Watch(ctx, func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	// Give the watcher time to register its directories before mutating.
	time.Sleep(50 * time.Millisecond)

	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	st.MessageSeq++
	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	select {
	case <-notified:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange was not called after a state write")
	}
}
