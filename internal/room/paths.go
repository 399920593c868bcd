package room

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// validateComponent rejects path traversal, control bytes, and separators in
// a single path component (an agent nickname or task id used to build a
// filename), grounded on policy.ValidatePath generalized from a single
// workspace root to any room-relative component.
func validateComponent(name string) error {
	if name == "" {
		return fmt.Errorf("empty path component")
	}
	if strings.ContainsAny(name, "/\\") || name == ".." || name == "." {
		return fmt.Errorf("invalid path component %q", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("control byte in path component %q", name)
		}
	}
	return nil
}

// ValidateResource rejects a resource identifier (e.g. a lock target) that
// could escape the room base via path traversal: absolute paths and any
// ".." segment. Generalizes validateComponent's single-filename check to
// multi-segment relative paths, so file-backed resources like
// "src/main.go" stay lockable while "../../../etc/cron.d/x" does not.
func ValidateResource(resource string) error {
	if resource == "" {
		return fmt.Errorf("empty resource")
	}
	if filepath.IsAbs(resource) {
		return fmt.Errorf("resource %q must be relative", resource)
	}
	for _, seg := range strings.Split(resource, "/") {
		if err := validateComponent(seg); err != nil {
			return fmt.Errorf("resource %q: %w", resource, err)
		}
	}
	return nil
}

// Paths computes canonical on-disk locations under a room base path,
// matching the layout in spec §6.3.
type Paths struct{ Base string }

func NewPaths(base string) Paths { return Paths{Base: base} }

func (p Paths) Dir() string              { return filepath.Join(p.Base, ".masc") }
func (p Paths) StateFile() string        { return filepath.Join(p.Dir(), "state.json") }
func (p Paths) BacklogFile() string      { return filepath.Join(p.Dir(), "backlog.json") }
func (p Paths) ArchiveFile() string      { return filepath.Join(p.Dir(), "tasks-archive.json") }
func (p Paths) AgentsDir() string        { return filepath.Join(p.Dir(), "agents") }
func (p Paths) MessagesDir() string      { return filepath.Join(p.Dir(), "messages") }
func (p Paths) AuditLog() string         { return filepath.Join(p.Dir(), "audit.log") }
func (p Paths) CurrentTaskFile() string  { return filepath.Join(p.Dir(), "current_task") }
func (p Paths) CurrentRoomFile() string  { return filepath.Join(p.Dir(), "current_room") }
func (p Paths) RoomsRegistryFile() string { return filepath.Join(p.Dir(), "rooms.json") }
func (p Paths) PlanningDir(taskID string) string {
	return filepath.Join(p.Base, "planning", taskID)
}
func (p Paths) CachesDir() string { return filepath.Join(p.Dir(), "caches") }

// AgentFile returns the path for an agent's JSON record. name must already
// be validated.
func (p Paths) AgentFile(name string) (string, error) {
	if err := validateComponent(name); err != nil {
		return "", err
	}
	return filepath.Join(p.AgentsDir(), name+".json"), nil
}

// MessageFile returns the path for one persisted message, zero-padded seq,
// matching spec §6.3's `<seq>_<agent>_broadcast.json` convention.
func (p Paths) MessageFile(seq int, agent string) (string, error) {
	if err := validateComponent(agent); err != nil {
		return "", err
	}
	return filepath.Join(p.MessagesDir(), fmt.Sprintf("%08d_%s_broadcast.json", seq, agent)), nil
}

// ParseMessageSeq extracts the zero-padded sequence prefix from a message
// filename, used when scanning the messages directory during GC.
func ParseMessageSeq(filename string) (int, bool) {
	base := filepath.Base(filename)
	idx := strings.IndexByte(base, '_')
	if idx <= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[:idx])
	if err != nil {
		return 0, false
	}
	return n, true
}
