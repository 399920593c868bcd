package storage

import (
	"context"
	"testing"
	"time"
)

func TestFileBackendGetSetRoundTrip(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	if _, err := b.Get("missing"); err != ErrNotFound {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := b.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}
}

func TestFileBackendLockOwnership(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	ok, err := b.AcquireLock("f", time.Minute, "a")
	if err != nil || !ok {
		t.Fatalf("acquire by a: ok=%v err=%v", ok, err)
	}
	ok, err = b.AcquireLock("f", time.Minute, "b")
	if err != nil || ok {
		t.Fatalf("acquire by b while held: ok=%v err=%v, want false", ok, err)
	}
	released, err := b.ReleaseLock("f", "b")
	if err != nil || released {
		t.Fatalf("release by non-owner: released=%v err=%v, want false", released, err)
	}
	released, err = b.ReleaseLock("f", "a")
	if err != nil || !released {
		t.Fatalf("release by owner: released=%v err=%v, want true", released, err)
	}
	ok, err = b.AcquireLock("f", time.Minute, "b")
	if err != nil || !ok {
		t.Fatalf("acquire by b after release: ok=%v err=%v", ok, err)
	}
}

func TestFileBackendLockExpiry(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	ok, _ := b.AcquireLock("f", 10*time.Millisecond, "a")
	if !ok {
		t.Fatal("initial acquire failed")
	}
	time.Sleep(20 * time.Millisecond)
	ok, err := b.AcquireLock("f", time.Minute, "b")
	if err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v, want true", ok, err)
	}
}

func TestFileBackendPublishSubscribe(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "room")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish("room", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-ch:
		if string(msg.Payload) != "hello" {
			t.Fatalf("payload = %q, want %q", msg.Payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestFileBackendCleanupPubSub(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	for i := 0; i < 5; i++ {
		_ = b.Publish("c", []byte("m"))
	}
	dropped, err := b.CleanupPubSub(30, 2)
	if err != nil {
		t.Fatalf("CleanupPubSub: %v", err)
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if got := len(b.history["c"]); got != 2 {
		t.Fatalf("remaining history = %d, want 2", got)
	}
}
