package taskengine

import (
	"errors"
	"testing"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

func newBacklog() *domain.Backlog {
	return &domain.Backlog{Tasks: []domain.Task{}, Version: 1}
}

func TestAddTaskAssignsDenseID(t *testing.T) {
	b := newBacklog()
	t1, err := AddTask(b, 1, "first", "d", 3, "")
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if t1.ID != "task-001" {
		t.Fatalf("ID = %q, want task-001", t1.ID)
	}
	t2, err := AddTask(b, b.Version, "second", "d", 3, "")
	if err != nil {
		t.Fatalf("AddTask 2: %v", err)
	}
	if t2.ID != "task-002" {
		t.Fatalf("ID = %q, want task-002", t2.ID)
	}
}

func TestAddTaskRejectsBadPriority(t *testing.T) {
	b := newBacklog()
	if _, err := AddTask(b, 1, "x", "d", 0, ""); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("err = %v, want ErrInvalidPriority", err)
	}
	if _, err := AddTask(b, 1, "x", "d", 6, ""); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("err = %v, want ErrInvalidPriority", err)
	}
}

func TestAddTaskVersionConflict(t *testing.T) {
	b := newBacklog()
	if _, err := AddTask(b, 99, "x", "d", 3, ""); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
}

func TestClaimNextPicksHighestPriority(t *testing.T) {
	b := newBacklog()
	AddTask(b, b.Version, "low", "d", 5, "")
	AddTask(b, b.Version, "high", "d", 1, "")
	got, err := ClaimNext(b, b.Version, "fox")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got == nil || got.Title != "high" {
		t.Fatalf("ClaimNext = %+v, want title 'high'", got)
	}
	if got.Status.Kind != domain.StatusClaimed || got.Status.Assignee != "fox" {
		t.Fatalf("status = %+v", got.Status)
	}
}

func TestClaimNextTieBreaksByAge(t *testing.T) {
	b := newBacklog()
	older, _ := AddTask(b, b.Version, "older", "d", 3, "")
	b.Tasks[0].CreatedAt = time.Now().Add(-time.Hour)
	_, _ = AddTask(b, b.Version, "newer", "d", 3, "")

	got, err := ClaimNext(b, b.Version, "owl")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("ClaimNext picked %s, want the older task %s", got.ID, older.ID)
	}
}

func TestClaimNextEmptyBacklogReturnsNil(t *testing.T) {
	b := newBacklog()
	got, err := ClaimNext(b, b.Version, "fox")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if got != nil {
		t.Fatalf("ClaimNext = %+v, want nil", got)
	}
}

func TestEffectivePriorityDecaysWithAge(t *testing.T) {
	if got := EffectivePriority(5, 0); got != 5 {
		t.Fatalf("age 0: got %d, want 5", got)
	}
	if got := EffectivePriority(5, 48*time.Hour); got != 3 {
		t.Fatalf("age 48h: got %d, want 3", got)
	}
	if got := EffectivePriority(1, 240*time.Hour); got != 1 {
		t.Fatalf("floor at 1: got %d, want 1", got)
	}
}

func TestFullLifecycleTransitions(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")

	if _, err := Claim(b, b.Version, task.ID, "fox"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := Start(b, b.Version, task.ID, "fox"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done, err := Complete(b, b.Version, task.ID, "fox", "finished")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status.Kind != domain.StatusDone || done.Status.Notes != "finished" {
		t.Fatalf("status = %+v", done.Status)
	}
}

func TestStartRejectsWrongAssignee(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	if _, err := Start(b, b.Version, task.ID, "owl"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelRejectsTerminalStatus(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	Start(b, b.Version, task.ID, "fox")
	Complete(b, b.Version, task.ID, "fox", "done")
	if _, err := Cancel(b, b.Version, task.ID, "fox", "nvm"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestReleaseRevertsToTodo(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	released, err := Release(b, b.Version, task.ID, "fox")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status.Kind != domain.StatusTodo {
		t.Fatalf("status = %+v, want todo", released.Status)
	}
}

func TestReleaseRejectsWrongAssignee(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	if _, err := Release(b, b.Version, task.ID, "owl"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestReleaseByEmptyBypassesOwnership(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	released, err := Release(b, b.Version, task.ID, "")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status.Kind != domain.StatusTodo {
		t.Fatalf("status = %+v, want todo", released.Status)
	}
}

func TestCancelRejectsWrongAssignee(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	if _, err := Cancel(b, b.Version, task.ID, "owl", "nvm"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTaskNotFound(t *testing.T) {
	b := newBacklog()
	if _, err := Claim(b, b.Version, "task-999", "fox"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestArchiveSweepMovesOldNonDoneTasks(t *testing.T) {
	b := newBacklog()
	old, _ := AddTask(b, b.Version, "old", "d", 3, "")
	b.Tasks[0].CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
	fresh, _ := AddTask(b, b.Version, "fresh", "d", 3, "")

	archived := ArchiveSweep(b, 7*24*time.Hour)
	if len(archived) != 1 || archived[0].ID != old.ID {
		t.Fatalf("archived = %+v, want [%s]", archived, old.ID)
	}
	if len(b.Tasks) != 1 || b.Tasks[0].ID != fresh.ID {
		t.Fatalf("remaining tasks = %+v, want [%s]", b.Tasks, fresh.ID)
	}
}

func TestArchiveSweepKeepsDoneRegardlessOfAge(t *testing.T) {
	b := newBacklog()
	task, _ := AddTask(b, b.Version, "t", "d", 3, "")
	Claim(b, b.Version, task.ID, "fox")
	Start(b, b.Version, task.ID, "fox")
	Complete(b, b.Version, task.ID, "fox", "done")
	b.Tasks[0].CreatedAt = time.Now().Add(-30 * 24 * time.Hour)

	archived := ArchiveSweep(b, 7*24*time.Hour)
	if len(archived) != 0 {
		t.Fatalf("archived = %+v, want none", archived)
	}
}
