// Package taskengine implements the Backlog and task state machine (spec
// §4.4): CAS-guarded mutation, starvation-aware claim_next, and archive/GC.
// Grounded on tasks.go, generalized from tasks.CollabService's single
// sqlite-backed aggregate into an in-memory state machine operating over a
// *domain.Backlog loaded and saved by the caller (the Room Store owns the
// document; the engine owns the transition rules).
package taskengine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

var (
	// ErrVersionConflict is returned when a caller's ExpectedVersion does
	// not match the Backlog's current Version (optimistic concurrency).
	// The message text is part of the spec's error taxonomy (spec.md §7):
	// callers match on the "Version mismatch" substring.
	ErrVersionConflict = errors.New("Version mismatch")
	// ErrTaskNotFound is returned when a task id does not exist in the
	// backlog.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a requested transition is not
	// legal from the task's current status.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrInvalidPriority is returned for priorities outside 1..5. Per the
	// decision recorded in SPEC_FULL.md, out-of-range priorities are
	// rejected rather than clamped.
	ErrInvalidPriority = errors.New("priority must be between 1 and 5")
)

// MinPriority and MaxPriority bound the legal Task.Priority range.
const (
	MinPriority = 1
	MaxPriority = 5
)

// StarvationWindow is the age (in hours) after which effective priority
// drops by one point, per spec §3's anti-starvation rule.
const StarvationWindow = 24 * time.Hour

func validatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, p)
	}
	return nil
}

// EffectivePriority computes max(1, priority - floor(age_hours/24)), the
// starvation-mitigation formula named in spec §3.
func EffectivePriority(priority int, age time.Duration) int {
	aged := int(math.Floor(age.Hours() / StarvationWindow.Hours()))
	eff := priority - aged
	if eff < 1 {
		eff = 1
	}
	return eff
}

// checkVersion compares expectedVersion against the backlog's current
// version; expectedVersion <= 0 means "skip the check" for callers that do
// not participate in CAS (e.g. internal GC).
func checkVersion(b *domain.Backlog, expectedVersion int64) error {
	if expectedVersion > 0 && b.Version != expectedVersion {
		return fmt.Errorf("%w (expected %d, got %d)", ErrVersionConflict, expectedVersion, b.Version)
	}
	return nil
}

func nextTaskID(b *domain.Backlog) string {
	max := 0
	for _, t := range b.Tasks {
		var n int
		if _, err := fmt.Sscanf(t.ID, "task-%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("task-%03d", max+1)
}

func findTask(b *domain.Backlog, id string) (int, *domain.Task) {
	for i := range b.Tasks {
		if b.Tasks[i].ID == id {
			return i, &b.Tasks[i]
		}
	}
	return -1, nil
}

// AddTask appends a new Todo task with a dense, contiguous task-NNN id and
// bumps the backlog version. expectedVersion participates in CAS the same
// way as every other mutator.
func AddTask(b *domain.Backlog, expectedVersion int64, title, description string, priority int, worktree string) (domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return domain.Task{}, err
	}
	if err := validatePriority(priority); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          nextTaskID(b),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      domain.Todo(),
		CreatedAt:   time.Now(),
		Worktree:    worktree,
	}
	b.Tasks = append(b.Tasks, t)
	b.Version++
	b.LastUpdated = time.Now()
	return t, nil
}

// AddTasksBatch adds multiple tasks atomically against a single CAS check,
// matching spec §4.4's batch-add operation.
func AddTasksBatch(b *domain.Backlog, expectedVersion int64, specs []struct {
	Title       string
	Description string
	Priority    int
	Worktree    string
}) ([]domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := validatePriority(spec.Priority); err != nil {
			return nil, err
		}
	}
	added := make([]domain.Task, 0, len(specs))
	for _, spec := range specs {
		t := domain.Task{
			ID:          nextTaskID(b),
			Title:       spec.Title,
			Description: spec.Description,
			Priority:    spec.Priority,
			Status:      domain.Todo(),
			CreatedAt:   time.Now(),
			Worktree:    spec.Worktree,
		}
		b.Tasks = append(b.Tasks, t)
		added = append(added, t)
	}
	b.Version++
	b.LastUpdated = time.Now()
	return added, nil
}

// ClaimNext picks the highest effective-priority Todo task and transitions
// it to Claimed by assignee, ties broken by creation order (oldest first).
func ClaimNext(b *domain.Backlog, expectedVersion int64, assignee string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	now := time.Now()
	candidates := make([]int, 0)
	for i, t := range b.Tasks {
		if t.Status.Kind == domain.StatusTodo {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(a, c int) bool {
		ta, tc := b.Tasks[candidates[a]], b.Tasks[candidates[c]]
		ea := EffectivePriority(ta.Priority, now.Sub(ta.CreatedAt))
		ec := EffectivePriority(tc.Priority, now.Sub(tc.CreatedAt))
		if ea != ec {
			return ea < ec
		}
		return ta.CreatedAt.Before(tc.CreatedAt)
	})
	idx := candidates[0]
	b.Tasks[idx].Status = domain.TaskStatus{Kind: domain.StatusClaimed, Assignee: assignee, ClaimedAt: now}
	b.Version++
	b.LastUpdated = now
	return &b.Tasks[idx], nil
}

// Claim transitions a specific task from Todo to Claimed.
func Claim(b *domain.Backlog, expectedVersion int64, taskID, assignee string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	_, t := findTask(b, taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Kind != domain.StatusTodo {
		return nil, fmt.Errorf("%w: %s is %s, want todo", ErrInvalidTransition, taskID, t.Status.Summary())
	}
	now := time.Now()
	t.Status = domain.TaskStatus{Kind: domain.StatusClaimed, Assignee: assignee, ClaimedAt: now}
	b.Version++
	b.LastUpdated = now
	return t, nil
}

// Start transitions a task from Claimed (by assignee) to InProgress.
func Start(b *domain.Backlog, expectedVersion int64, taskID, assignee string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	_, t := findTask(b, taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Kind != domain.StatusClaimed || t.Status.Assignee != assignee {
		return nil, fmt.Errorf("%w: %s is %s, want claimed(%s)", ErrInvalidTransition, taskID, t.Status.Summary(), assignee)
	}
	now := time.Now()
	t.Status = domain.TaskStatus{Kind: domain.StatusInProgress, Assignee: assignee, ClaimedAt: t.Status.ClaimedAt, StartedAt: now}
	b.Version++
	b.LastUpdated = now
	return t, nil
}

// Complete transitions a task from InProgress (by assignee) to Done.
func Complete(b *domain.Backlog, expectedVersion int64, taskID, assignee, notes string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	_, t := findTask(b, taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Kind != domain.StatusInProgress || t.Status.Assignee != assignee {
		return nil, fmt.Errorf("%w: %s is %s, want in_progress(%s)", ErrInvalidTransition, taskID, t.Status.Summary(), assignee)
	}
	now := time.Now()
	t.Status = domain.TaskStatus{
		Kind: domain.StatusDone, Assignee: assignee,
		ClaimedAt: t.Status.ClaimedAt, StartedAt: t.Status.StartedAt,
		CompletedAt: now, Notes: notes,
	}
	b.Version++
	b.LastUpdated = now
	return t, nil
}

// Cancel transitions a task to Cancelled from any non-terminal status.
func Cancel(b *domain.Backlog, expectedVersion int64, taskID, by, reason string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	_, t := findTask(b, taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Kind == domain.StatusDone || t.Status.Kind == domain.StatusCancelled {
		return nil, fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, taskID, t.Status.Summary())
	}
	if (t.Status.Kind == domain.StatusClaimed || t.Status.Kind == domain.StatusInProgress) && t.Status.Assignee != by {
		return nil, fmt.Errorf("%w: %s is %s, not owned by %s", ErrInvalidTransition, taskID, t.Status.Summary(), by)
	}
	now := time.Now()
	t.Status = domain.TaskStatus{Kind: domain.StatusCancelled, CancelledBy: by, CancelledAt: now, Reason: reason}
	b.Version++
	b.LastUpdated = now
	return t, nil
}

// Release reverts a Claimed or InProgress task back to Todo, used when an
// agent abandons work or is reaped as a zombie. by must equal the task's
// current assignee; pass "" from zombie-reaping callers that bypass the
// ownership check because the original assignee is, by definition, no
// longer live to make the call itself.
func Release(b *domain.Backlog, expectedVersion int64, taskID, by string) (*domain.Task, error) {
	if err := checkVersion(b, expectedVersion); err != nil {
		return nil, err
	}
	_, t := findTask(b, taskID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Kind != domain.StatusClaimed && t.Status.Kind != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: %s is %s, want claimed or in_progress", ErrInvalidTransition, taskID, t.Status.Summary())
	}
	if by != "" && t.Status.Assignee != by {
		return nil, fmt.Errorf("%w: %s is %s, not owned by %s", ErrInvalidTransition, taskID, t.Status.Summary(), by)
	}
	t.Status = domain.Todo()
	b.Version++
	b.LastUpdated = time.Now()
	return t, nil
}

// ArchiveSweep moves tasks older than maxAge that are not Done out of
// Tasks into a returned archive slice, leaving Done tasks and recent tasks
// in place. Grounded on spec §4.4's archive/GC operation.
func ArchiveSweep(b *domain.Backlog, maxAge time.Duration) (archived []domain.Task) {
	now := time.Now()
	kept := b.Tasks[:0:0]
	for _, t := range b.Tasks {
		if t.Status.Kind != domain.StatusDone && now.Sub(t.CreatedAt) > maxAge {
			archived = append(archived, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(archived) > 0 {
		b.Tasks = kept
		b.Version++
		b.LastUpdated = now
	}
	return archived
}
