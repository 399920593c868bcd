package planning

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/storage"
)

// WorkContextFile is the sibling document holding a task's WorkContext,
// persisted alongside context.json per SPEC_FULL.md §4.
const WorkContextFile = "work_context.json"

func (s *Store) workContextPath(taskID string) string {
	return filepath.Join(s.dirFor(taskID), WorkContextFile)
}

// GetWorkContext loads a task's work context, returning a nil context (not
// an error) if none has been set.
func (s *Store) GetWorkContext(taskID string) (*domain.WorkContext, error) {
	data, err := os.ReadFile(s.workContextPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var wc domain.WorkContext
	if err := json.Unmarshal(data, &wc); err != nil {
		return nil, err
	}
	return &wc, nil
}

// UpdateWorkContext merges a shared-notes key/value into a task's work
// context, creating it (optionally inheriting from a parent task) if absent.
func (s *Store) UpdateWorkContext(taskID, parentCtxID, key, value string) (*domain.WorkContext, error) {
	wc, err := s.GetWorkContext(taskID)
	if err != nil {
		return nil, err
	}
	if wc == nil {
		wc = &domain.WorkContext{TaskID: taskID, ParentCtxID: parentCtxID, SharedNotes: map[string]string{}}
		if parentCtxID != "" {
			if parent, err := s.GetWorkContext(parentCtxID); err == nil && parent != nil {
				wc.RelevantFiles = append([]string(nil), parent.RelevantFiles...)
				wc.Background = parent.Background
				wc.Constraints = append([]string(nil), parent.Constraints...)
			}
		}
	}
	if wc.SharedNotes == nil {
		wc.SharedNotes = map[string]string{}
	}
	wc.SharedNotes[key] = value
	if err := s.saveWorkContext(wc); err != nil {
		return nil, err
	}
	return wc, nil
}

func (s *Store) saveWorkContext(wc *domain.WorkContext) error {
	dir := s.dirFor(wc.TaskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(wc, "", "  ")
	if err != nil {
		return err
	}
	return storage.AtomicWrite(s.workContextPath(wc.TaskID), data)
}
