package room

import (
	"os"
	"time"

	"github.com/jaakkos/masc/internal/domain"
)

func (p Paths) SessionNotesFile() string { return p.Dir() + "/session_notes.json" }

// ListSessionNotes returns the room's session-note log, oldest first.
func (s *Store) ListSessionNotes() ([]domain.SessionNote, error) {
	var notes []domain.SessionNote
	if err := readJSON(s.Paths.SessionNotesFile(), &notes); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return notes, nil
}

// AppendSessionNote appends one entry to the room's session-note log.
func (s *Store) AppendSessionNote(author, content, category string) (domain.SessionNote, error) {
	notes, err := s.ListSessionNotes()
	if err != nil {
		return domain.SessionNote{}, err
	}
	note := domain.SessionNote{
		ID:        len(notes) + 1,
		Author:    author,
		Content:   content,
		Category:  category,
		Timestamp: time.Now(),
	}
	notes = append(notes, note)
	if err := writeJSON(s.Paths.SessionNotesFile(), notes); err != nil {
		return domain.SessionNote{}, err
	}
	return note, nil
}
