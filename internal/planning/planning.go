// Package planning implements the Planning & Run Store (spec §4.6): a
// per-task PlanningContext with plan, running notes, error log, and
// deliverable, canonically stored as context.json with markdown sibling
// files (task_plan.md, notes.md, errors.md, deliverable.md) rebuilt from it
// on every write. Grounded on collab.registerCreatePlan/GetPlan/UpdatePlan,
// rebuilt around markdown siblings instead of SQL-table-backed plan/plan_items.
package planning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/storage"
)

// ContextFile and the markdown sibling filenames, per spec §6.3.
const (
	ContextFile     = "context.json"
	TaskPlanFile    = "task_plan.md"
	NotesFile       = "notes.md"
	ErrorsFile      = "errors.md"
	DeliverableFile = "deliverable.md"
)

// Store manages planning contexts under a room's planning/<task-id>/ tree.
type Store struct {
	// dirFor resolves a task id to its planning directory; supplied by the
	// caller (normally room.Paths.PlanningDir) so this package has no
	// dependency on room's path layout.
	dirFor func(taskID string) string
}

// New builds a Store using dirFor to resolve each task's planning directory.
func New(dirFor func(taskID string) string) *Store {
	return &Store{dirFor: dirFor}
}

func (s *Store) contextPath(taskID string) string {
	return filepath.Join(s.dirFor(taskID), ContextFile)
}

// Get loads a task's planning context, returning a fresh empty context if
// none exists yet.
func (s *Store) Get(taskID string) (*domain.PlanningContext, error) {
	data, err := os.ReadFile(s.contextPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.PlanningContext{TaskID: taskID, Notes: []string{}, Errors: []domain.PlanningErrorEntry{}}, nil
		}
		return nil, err
	}
	var ctx domain.PlanningContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("planning: decode context for %s: %w", taskID, err)
	}
	return &ctx, nil
}

// PlanningErrorEntry is re-exported for callers that only import planning.
type PlanningErrorEntry = domain.PlanningErrorEntry

// Save persists ctx as context.json and rebuilds the markdown sibling files
// from it.
func (s *Store) Save(ctx *domain.PlanningContext) error {
	dir := s.dirFor(ctx.TaskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ctx.UpdatedAt = time.Now()
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = ctx.UpdatedAt
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return err
	}
	if err := storage.AtomicWrite(s.contextPath(ctx.TaskID), data); err != nil {
		return err
	}
	return s.renderSiblings(dir, ctx)
}

func (s *Store) renderSiblings(dir string, ctx *domain.PlanningContext) error {
	if err := storage.AtomicWrite(filepath.Join(dir, TaskPlanFile), []byte(ctx.TaskPlan+"\n")); err != nil {
		return err
	}

	var notes strings.Builder
	for _, n := range ctx.Notes {
		notes.WriteString("- ")
		notes.WriteString(n)
		notes.WriteByte('\n')
	}
	if err := storage.AtomicWrite(filepath.Join(dir, NotesFile), []byte(notes.String())); err != nil {
		return err
	}

	var errs strings.Builder
	for i, e := range ctx.Errors {
		status := "open"
		if e.Resolved {
			status = "resolved"
		}
		fmt.Fprintf(&errs, "## [%d] %s (%s) — %s\n\n%s\n\n", i, e.Type, status, e.Timestamp.Format(time.RFC3339), e.Message)
		if e.Context != "" {
			fmt.Fprintf(&errs, "context: %s\n\n", e.Context)
		}
	}
	if err := storage.AtomicWrite(filepath.Join(dir, ErrorsFile), []byte(errs.String())); err != nil {
		return err
	}

	return storage.AtomicWrite(filepath.Join(dir, DeliverableFile), []byte(ctx.Deliverable+"\n"))
}

// SetPlan replaces the task_plan field and re-renders siblings.
func (s *Store) SetPlan(taskID, plan string) (*domain.PlanningContext, error) {
	ctx, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	ctx.TaskPlan = plan
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// AppendNote appends one running-note line.
func (s *Store) AppendNote(taskID, note string) (*domain.PlanningContext, error) {
	ctx, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	ctx.Notes = append(ctx.Notes, note)
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// LogError appends an unresolved error log entry.
func (s *Store) LogError(taskID, errType, message, context string) (*domain.PlanningContext, error) {
	ctx, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	ctx.Errors = append(ctx.Errors, domain.PlanningErrorEntry{
		Timestamp: time.Now(), Type: errType, Message: message, Context: context,
	})
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// ResolveError marks the error at index as resolved.
func (s *Store) ResolveError(taskID string, index int) (*domain.PlanningContext, error) {
	ctx, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ctx.Errors) {
		return nil, fmt.Errorf("planning: error index %d out of range (have %d)", index, len(ctx.Errors))
	}
	ctx.Errors[index].Resolved = true
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// SetDeliverable replaces the deliverable summary.
func (s *Store) SetDeliverable(taskID, deliverable string) (*domain.PlanningContext, error) {
	ctx, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	ctx.Deliverable = deliverable
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}
