// Package lockmanager implements the Resource Lock component (spec §4.5):
// advisory, TTL-bounded locks over arbitrary resource identifiers (file
// paths, task ids), fronting the Storage Backend's AcquireLock/ReleaseLock.
// Grounded on file_lock.go's lock/unlock/check/list actions, generalized
// from an in-process state.FileLocks map to the Storage Backend interface
// so locks are visible across processes sharing a room directory.
package lockmanager

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/room"
	"github.com/jaakkos/masc/internal/storage"
)

func marshalLock(l domain.ResourceLock) ([]byte, error) { return json.Marshal(l) }

func unmarshalLock(data []byte) (domain.ResourceLock, error) {
	var l domain.ResourceLock
	err := json.Unmarshal(data, &l)
	return l, err
}

// DefaultDuration and MaxDuration match file_lock.go's 30/120 minute bounds.
const (
	DefaultDuration = 30 * time.Minute
	MaxDuration     = 120 * time.Minute
	MinDuration     = time.Minute
)

// ErrFileLocked is returned by Lock when the resource is already held by a
// different owner and has not expired.
type ErrFileLocked struct {
	Resource  string
	Owner     string
	ExpiresAt time.Time
	Reason    string
}

func (e *ErrFileLocked) Error() string {
	return fmt.Sprintf("resource %q locked by %s until %s: %s",
		e.Resource, e.Owner, e.ExpiresAt.Format(time.RFC3339), e.Reason)
}

// ErrFileNotLocked is returned by Unlock/Check when the resource has no
// active lock.
type ErrFileNotLocked struct{ Resource string }

func (e *ErrFileNotLocked) Error() string {
	return fmt.Sprintf("resource %q is not locked", e.Resource)
}

func resourceKey(resource string) string {
	return "locks:" + resource
}

// Manager fronts a storage.Backend with the resource-lock domain rules:
// duration clamping, owner checks, and force-unlock. The reason passed to
// Lock is not stored with the lock.
type Manager struct {
	backend storage.Backend
}

// New builds a Manager over the given storage backend.
func New(backend storage.Backend) *Manager {
	return &Manager{backend: backend}
}

// ClampDuration enforces MinDuration..MaxDuration, defaulting to
// DefaultDuration when d <= 0.
func ClampDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultDuration
	}
	if d > MaxDuration {
		return MaxDuration
	}
	if d < MinDuration {
		return MinDuration
	}
	return d
}

// Lock acquires an advisory lock on resource for owner, clamped to
// ClampDuration(duration). Re-locking by the same owner refreshes the TTL.
// Locking a resource already held by a different, unexpired owner returns
// *ErrFileLocked.
func (m *Manager) Lock(resource, owner, reason string, duration time.Duration) (domain.ResourceLock, error) {
	if strings.TrimSpace(resource) == "" || strings.TrimSpace(owner) == "" {
		return domain.ResourceLock{}, fmt.Errorf("lockmanager: resource and owner are required")
	}
	if err := room.ValidateResource(resource); err != nil {
		return domain.ResourceLock{}, fmt.Errorf("lockmanager: %w", err)
	}
	ttl := ClampDuration(duration)
	ok, err := m.backend.AcquireLock(resourceKey(resource), ttl, owner)
	if err != nil {
		return domain.ResourceLock{}, err
	}
	if !ok {
		existing, _ := m.Check(resource)
		return domain.ResourceLock{}, &ErrFileLocked{Resource: resource, Owner: existing.Owner, ExpiresAt: existing.ExpiresAt, Reason: reason}
	}
	now := time.Now()
	lock := domain.ResourceLock{Resource: resource, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	if data, err := marshalLock(lock); err == nil {
		m.backend.Set(resourceKey(resource)+":meta", data)
	}
	return lock, nil
}

// Unlock releases resource's lock. Unless force is true, only the current
// owner may release it; mismatched owner without force returns
// *ErrFileNotLocked (mirroring file_lock.go's "not locked by you" path).
func (m *Manager) Unlock(resource, owner string, force bool) error {
	if err := room.ValidateResource(resource); err != nil {
		return fmt.Errorf("lockmanager: %w", err)
	}
	releaseOwner := owner
	if force {
		existing, err := m.Check(resource)
		if err != nil {
			return err
		}
		releaseOwner = existing.Owner
	}
	ok, err := m.backend.ReleaseLock(resourceKey(resource), releaseOwner)
	if err != nil {
		return err
	}
	if !ok {
		return &ErrFileNotLocked{Resource: resource}
	}
	m.backend.Set(resourceKey(resource)+":meta", nil)
	return nil
}

// Check reports the current lock on resource, if any.
func (m *Manager) Check(resource string) (domain.ResourceLock, error) {
	if err := room.ValidateResource(resource); err != nil {
		return domain.ResourceLock{}, fmt.Errorf("lockmanager: %w", err)
	}
	data, err := m.backend.Get(resourceKey(resource) + ":meta")
	if err != nil {
		if err == storage.ErrNotFound {
			return domain.ResourceLock{}, &ErrFileNotLocked{Resource: resource}
		}
		return domain.ResourceLock{}, err
	}
	if len(data) == 0 {
		return domain.ResourceLock{}, &ErrFileNotLocked{Resource: resource}
	}
	lock, err := unmarshalLock(data)
	if err != nil {
		return domain.ResourceLock{}, err
	}
	if lock.Expired(time.Now()) {
		return domain.ResourceLock{}, &ErrFileNotLocked{Resource: resource}
	}
	return lock, nil
}
