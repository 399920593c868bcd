package registry

import (
	"context"
	"testing"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

func TestRegisterUnregisterIdempotent(t *testing.T) {
	r := New(nil)
	r.Register("fox")
	r.Register("fox")
	if !r.IsRegistered("fox") {
		t.Fatal("expected fox registered")
	}
	r.Unregister("fox")
	r.Unregister("fox")
	if r.IsRegistered("fox") {
		t.Fatal("expected fox unregistered")
	}
}

func TestPushAndPopMessageBroadcast(t *testing.T) {
	r := New(nil)
	r.Register("fox")
	r.Register("owl")
	r.PushMessage(domain.Message{Seq: 1, FromAgent: "owl", Content: "hi"})

	msg, ok := r.PopMessage("fox")
	if !ok || msg.Content != "hi" {
		t.Fatalf("PopMessage(fox) = %+v, %v", msg, ok)
	}
	if _, ok := r.PopMessage("owl"); ok {
		t.Fatal("sender should not receive its own broadcast")
	}
}

func TestPushMessageMentionTargeted(t *testing.T) {
	r := New(nil)
	r.Register("fox")
	r.Register("owl")
	r.PushMessage(domain.Message{Seq: 1, FromAgent: "owl", Content: "hey fox", Mention: "fox"})

	if _, ok := r.PopMessage("owl"); ok {
		t.Fatal("owl should not receive a message mentioning fox only")
	}
	msg, ok := r.PopMessage("fox")
	if !ok || msg.Mention != "fox" {
		t.Fatalf("PopMessage(fox) = %+v, %v", msg, ok)
	}
}

func TestWaitForMessageDeliversPromptly(t *testing.T) {
	r := New(nil)
	r.Register("fox")

	done := make(chan domain.Message, 1)
	go func() {
		msg, ok := r.WaitForMessage(context.Background(), "fox", time.Second)
		if ok {
			done <- msg
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if !r.IsListening("fox") {
		t.Fatal("expected fox to be listening")
	}
	r.PushMessage(domain.Message{Seq: 1, FromAgent: "owl", Content: "wake up"})

	select {
	case msg := <-done:
		if msg.Content != "wake up" {
			t.Fatalf("got %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForMessage did not return after push")
	}
}

func TestWaitForMessageTimesOut(t *testing.T) {
	r := New(nil)
	r.Register("fox")
	start := time.Now()
	_, ok := r.WaitForMessage(context.Background(), "fox", 30*time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a message")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("returned too early")
	}
}

func TestWaitForMessageCancelledContext(t *testing.T) {
	r := New(nil)
	r.Register("fox")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	_, ok := r.WaitForMessage(ctx, "fox", 5*time.Second)
	if ok {
		t.Fatal("expected cancellation, got a message")
	}
}

func TestRateLimiterBurstThenDeny(t *testing.T) {
	l := NewRateLimiter(map[string]CategoryLimit{"task-ops": {Burst: 2, RefillPerSec: 0.01}})
	allowed1, _ := l.Check("fox", "task-ops", RoleWorker)
	allowed2, _ := l.Check("fox", "task-ops", RoleWorker)
	allowed3, wait := l.Check("fox", "task-ops", RoleWorker)
	if !allowed1 || !allowed2 {
		t.Fatal("expected first two calls within burst to be allowed")
	}
	if allowed3 {
		t.Fatal("expected third call to exceed burst")
	}
	if wait <= 0 {
		t.Fatalf("expected positive wait estimate, got %v", wait)
	}
}

func TestRateLimiterRoleMultiplier(t *testing.T) {
	l := NewRateLimiter(map[string]CategoryLimit{"general": {Burst: 4, RefillPerSec: 0}})
	readerAllowed := 0
	for i := 0; i < 4; i++ {
		if allowed, _ := l.Check("reader1", "general", RoleReader); allowed {
			readerAllowed++
		}
	}
	if readerAllowed != 2 {
		t.Fatalf("reader (0.5x burst) got %d allowed calls, want 2", readerAllowed)
	}

	adminAllowed := 0
	for i := 0; i < 10; i++ {
		if allowed, _ := l.Check("admin1", "general", RoleAdmin); allowed {
			adminAllowed++
		}
	}
	if adminAllowed != 8 {
		t.Fatalf("admin (2x burst) got %d allowed calls, want 8", adminAllowed)
	}
}

func TestRateLimiterUnknownCategoryUnmetered(t *testing.T) {
	l := NewRateLimiter(map[string]CategoryLimit{})
	for i := 0; i < 100; i++ {
		if allowed, _ := l.Check("fox", "unmetered", RoleWorker); !allowed {
			t.Fatal("unknown category should never be denied")
		}
	}
}

func TestGetStatusesMarksZombie(t *testing.T) {
	r := New(nil)
	r.Register("stale")
	r.agents["stale"].lastSeen = time.Now().Add(-time.Hour)
	statuses := r.GetStatuses(5 * time.Minute)
	if len(statuses) != 1 || !statuses[0].IsZombie {
		t.Fatalf("GetStatuses = %+v, want one zombie entry", statuses)
	}
}
