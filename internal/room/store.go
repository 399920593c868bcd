// Package room implements the Room Store (spec §4.2): atomic JSON documents
// for state, backlog, agents, messages, and the audit log. Documents are
// written by atomic rewrite; only AppendEvent holds an advisory lock
// (WithFileLock) across its write, and the other writers take no lock.
package room

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/storage"
)

const ProtocolVersion = "masc/1"

// DefaultLockTTL bounds how long a backlog-level advisory lock may be held
// before another caller is allowed to consider it abandoned.
const DefaultLockTTL = 10 * time.Second

// Store is a room's persistence surface, rooted at a base directory.
type Store struct {
	Paths   Paths
	Backend storage.Backend

	// AuditEnabled gates whether AppendEvent writes to the audit log
	// (spec §4.7: "iff governance level enables auditing").
	AuditEnabled bool
}

// NewStore creates a Store using a filesystem Backend rooted at base.
func NewStore(base string) (*Store, error) {
	p := NewPaths(base)
	for _, dir := range []string{p.Dir(), p.AgentsDir(), p.MessagesDir(), p.CachesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("room: create %s: %w", dir, err)
		}
	}
	return &Store{
		Paths:        p,
		Backend:      storage.NewFileBackend(p.Dir()),
		AuditEnabled: true,
	}, nil
}

// Initialized reports whether the room has a state file.
func (s *Store) Initialized() bool {
	_, err := os.Stat(s.Paths.StateFile())
	return err == nil
}

// Init creates the room's state document if absent. Calling Init twice is a
// no-op: the second call only touches nothing (state unchanged except it
// is left exactly as found).
func (s *Store) Init(projectName string) (*domain.RoomState, error) {
	if s.Initialized() {
		return s.LoadState()
	}
	state := &domain.RoomState{
		ProtocolVersion: ProtocolVersion,
		ProjectName:     projectName,
		MessageSeq:      0,
		ActiveAgents:    []string{},
	}
	if err := s.SaveState(state); err != nil {
		return nil, err
	}
	backlog := &domain.Backlog{Tasks: []domain.Task{}, LastUpdated: time.Now(), Version: 1}
	if err := s.SaveBacklog(backlog); err != nil {
		return nil, err
	}
	return state, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return storage.AtomicWrite(path, data)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// LoadState reads the room state document. A missing file is NotInitialized.
func (s *Store) LoadState() (*domain.RoomState, error) {
	if !s.Initialized() {
		return nil, ErrNotInitialized
	}
	var st domain.RoomState
	if err := readJSON(s.Paths.StateFile(), &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &st, nil
}

// SaveState persists the room state document atomically.
func (s *Store) SaveState(st *domain.RoomState) error {
	return writeJSON(s.Paths.StateFile(), st)
}

// LoadBacklog reads the backlog document.
func (s *Store) LoadBacklog() (*domain.Backlog, error) {
	var b domain.Backlog
	if err := readJSON(s.Paths.BacklogFile(), &b); err != nil {
		if os.IsNotExist(err) {
			return &domain.Backlog{Tasks: []domain.Task{}, Version: 0}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &b, nil
}

// SaveBacklog persists the backlog document atomically.
func (s *Store) SaveBacklog(b *domain.Backlog) error {
	return writeJSON(s.Paths.BacklogFile(), b)
}

// LoadArchive reads archived (non-Done, GC'd) tasks.
func (s *Store) LoadArchive() ([]domain.Task, error) {
	var tasks []domain.Task
	if err := readJSON(s.Paths.ArchiveFile(), &tasks); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return tasks, nil
}

// SaveArchive persists the archive document atomically.
func (s *Store) SaveArchive(tasks []domain.Task) error {
	return writeJSON(s.Paths.ArchiveFile(), tasks)
}

// LoadAgent reads one agent's record, or nil if the agent has never joined.
func (s *Store) LoadAgent(name string) (*domain.Agent, error) {
	path, err := s.Paths.AgentFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var a domain.Agent
	if err := readJSON(path, &a); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &a, nil
}

// SaveAgent persists one agent's record atomically.
func (s *Store) SaveAgent(a *domain.Agent) error {
	path, err := s.Paths.AgentFile(a.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return writeJSON(path, a)
}

// DeleteAgent removes an agent's record (used by leave and zombie GC).
func (s *Store) DeleteAgent(name string) error {
	path, err := s.Paths.AgentFile(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListAgents returns every persisted agent record, sorted by name.
func (s *Store) ListAgents() ([]*domain.Agent, error) {
	entries, err := os.ReadDir(s.Paths.AgentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var agents []*domain.Agent
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var a domain.Agent
		if err := readJSON(s.Paths.AgentsDir()+"/"+e.Name(), &a); err != nil {
			continue // skip corrupt/partial records rather than fail listing
		}
		agents = append(agents, &a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// SaveMessage persists one message as its own file.
func (s *Store) SaveMessage(m domain.Message) error {
	path, err := s.Paths.MessageFile(m.Seq, m.FromAgent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return writeJSON(path, m)
}

// ListMessages returns persisted messages with seq > sinceSeq, oldest first,
// capped at limit (0 means unlimited).
func (s *Store) ListMessages(sinceSeq int, limit int) ([]domain.Message, error) {
	entries, err := os.ReadDir(s.Paths.MessagesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []domain.Message
	for _, e := range entries {
		seq, ok := ParseMessageSeq(e.Name())
		if !ok || seq <= sinceSeq {
			continue
		}
		var m domain.Message
		if err := readJSON(s.Paths.MessagesDir()+"/"+e.Name(), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// DeleteMessage removes a persisted message file, used by GC.
func (s *Store) DeleteMessage(seq int, agent string) error {
	path, err := s.Paths.MessageFile(seq, agent)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AppendEvent appends one JSON-line audit record under a file lock, if
// auditing is enabled.
func (s *Store) AppendEvent(ev domain.Event) error {
	if !s.AuditEnabled {
		return nil
	}
	return s.WithFileLock("audit-log", "room-store", DefaultLockTTL, func() error {
		f, err := os.OpenFile(s.Paths.AuditLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		return w.Flush()
	})
}

// WithFileLock holds an exclusive advisory lock on key across fn, releasing
// it on every exit path (success, error, or panic).
func (s *Store) WithFileLock(key, owner string, ttl time.Duration, fn func() error) error {
	return storage.WithFileLock(s.Backend, key, owner, ttl, fn)
}
