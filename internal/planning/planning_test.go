package planning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	base := t.TempDir()
	return New(func(taskID string) string {
		return filepath.Join(base, "planning", taskID)
	}), base
}

func TestGetReturnsEmptyContextWhenMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, err := s.Get("task-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ctx.TaskID != "task-001" || ctx.TaskPlan != "" {
		t.Fatalf("ctx = %+v, want empty plan for task-001", ctx)
	}
}

func TestSetPlanPersistsAndRendersMarkdown(t *testing.T) {
	s, base := newTestStore(t)
	if _, err := s.SetPlan("task-001", "1. Do the thing\n2. Verify it"); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	dir := filepath.Join(base, "planning", "task-001")
	data, err := os.ReadFile(filepath.Join(dir, TaskPlanFile))
	if err != nil {
		t.Fatalf("read task_plan.md: %v", err)
	}
	if !strings.Contains(string(data), "Do the thing") {
		t.Fatalf("task_plan.md = %q, missing plan content", data)
	}

	reloaded, err := s.Get("task-001")
	if err != nil {
		t.Fatalf("Get after save: %v", err)
	}
	if reloaded.TaskPlan != "1. Do the thing\n2. Verify it" {
		t.Fatalf("reloaded plan = %q", reloaded.TaskPlan)
	}
}

func TestAppendNoteAccumulates(t *testing.T) {
	s, base := newTestStore(t)
	s.AppendNote("task-001", "first note")
	s.AppendNote("task-001", "second note")

	ctx, err := s.Get("task-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(ctx.Notes) != 2 {
		t.Fatalf("notes = %+v, want 2 entries", ctx.Notes)
	}

	data, err := os.ReadFile(filepath.Join(base, "planning", "task-001", NotesFile))
	if err != nil {
		t.Fatalf("read notes.md: %v", err)
	}
	if !strings.Contains(string(data), "first note") || !strings.Contains(string(data), "second note") {
		t.Fatalf("notes.md = %q, missing entries", data)
	}
}

func TestLogErrorAndResolve(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.LogError("task-001", "build_failure", "compile error", "main.go:10"); err != nil {
		t.Fatalf("LogError: %v", err)
	}
	ctx, err := s.Get("task-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(ctx.Errors) != 1 || ctx.Errors[0].Resolved {
		t.Fatalf("errors = %+v, want one unresolved entry", ctx.Errors)
	}

	if _, err := s.ResolveError("task-001", 0); err != nil {
		t.Fatalf("ResolveError: %v", err)
	}
	ctx, err = s.Get("task-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ctx.Errors[0].Resolved {
		t.Fatal("expected error entry to be resolved")
	}
}

func TestResolveErrorOutOfRange(t *testing.T) {
	s, _ := newTestStore(t)
	s.LogError("task-001", "x", "y", "")
	if _, err := s.ResolveError("task-001", 5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestSetDeliverable(t *testing.T) {
	s, base := newTestStore(t)
	if _, err := s.SetDeliverable("task-001", "Shipped the widget."); err != nil {
		t.Fatalf("SetDeliverable: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(base, "planning", "task-001", DeliverableFile))
	if err != nil {
		t.Fatalf("read deliverable.md: %v", err)
	}
	if !strings.Contains(string(data), "Shipped the widget.") {
		t.Fatalf("deliverable.md = %q", data)
	}
}
