package lockmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(storage.NewFileBackend(t.TempDir()))
}

func TestLockAcquireAndCheck(t *testing.T) {
	m := newTestManager(t)
	lock, err := m.Lock("src/main.go", "fox", "refactor", 0)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if lock.Owner != "fox" {
		t.Fatalf("owner = %q, want fox", lock.Owner)
	}
	got, err := m.Check("src/main.go")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got.Owner != "fox" {
		t.Fatalf("Check owner = %q, want fox", got.Owner)
	}
}

func TestLockConflictReturnsFileLocked(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Lock("a.go", "fox", "work", time.Minute); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err := m.Lock("a.go", "owl", "other work", time.Minute)
	var lockedErr *ErrFileLocked
	if !errors.As(err, &lockedErr) {
		t.Fatalf("err = %v, want *ErrFileLocked", err)
	}
	if lockedErr.Owner != "fox" {
		t.Fatalf("lockedErr.Owner = %q, want fox", lockedErr.Owner)
	}
}

func TestSameOwnerRelockRefreshesTTL(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Lock("a.go", "fox", "work", time.Minute); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := m.Lock("a.go", "fox", "still working", time.Minute); err != nil {
		t.Fatalf("relock by same owner: %v", err)
	}
}

func TestUnlockRequiresOwnerUnlessForced(t *testing.T) {
	m := newTestManager(t)
	m.Lock("a.go", "fox", "work", time.Minute)

	if err := m.Unlock("a.go", "owl", false); err == nil {
		t.Fatal("expected error unlocking someone else's lock without force")
	}
	if err := m.Unlock("a.go", "owl", true); err != nil {
		t.Fatalf("forced unlock: %v", err)
	}
	if _, err := m.Check("a.go"); err == nil {
		t.Fatal("expected not-locked after forced unlock")
	}
}

func TestUnlockUnknownResource(t *testing.T) {
	m := newTestManager(t)
	err := m.Unlock("never-locked.go", "fox", false)
	var notLocked *ErrFileNotLocked
	if !errors.As(err, &notLocked) {
		t.Fatalf("err = %v, want *ErrFileNotLocked", err)
	}
}

func TestClampDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultDuration},
		{-time.Minute, DefaultDuration},
		{200 * time.Minute, MaxDuration},
		{time.Second, MinDuration},
		{45 * time.Minute, 45 * time.Minute},
	}
	for _, c := range cases {
		if got := ClampDuration(c.in); got != c.want {
			t.Errorf("ClampDuration(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCheckExpiredLockReportsNotLocked(t *testing.T) {
	m := newTestManager(t)
	past := time.Now().Add(-time.Minute)
	expired := domain.ResourceLock{Resource: "a.go", Owner: "fox", AcquiredAt: past.Add(-time.Minute), ExpiresAt: past}
	data, err := marshalLock(expired)
	if err != nil {
		t.Fatalf("marshalLock: %v", err)
	}
	if err := m.backend.Set(resourceKey("a.go")+":meta", data); err != nil {
		t.Fatalf("Set meta: %v", err)
	}
	if _, err := m.Check("a.go"); err == nil {
		t.Fatal("expected expired lock to report not-locked")
	}
}
