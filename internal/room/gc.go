package room

import (
	"os"
	"time"
)

// PruneMessages deletes persisted message files older than maxAge, or beyond
// the newest maxCount if maxCount > 0, returning the number removed.
// Grounded on the teacher's app.PruneMessages, generalized from an
// in-memory slice trim to deleting the corresponding message files.
func (s *Store) PruneMessages(maxCount int, maxAge time.Duration) (int, error) {
	msgs, err := s.ListMessages(0, 0)
	if err != nil {
		return 0, err
	}
	pruned := 0
	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	keep := len(msgs)
	if maxCount > 0 && keep > maxCount {
		keep = maxCount
	}
	for i, m := range msgs {
		tooOld := maxAge > 0 && m.Timestamp.Before(cutoff)
		tooMany := maxCount > 0 && i < len(msgs)-keep
		if !tooOld && !tooMany {
			continue
		}
		if err := s.DeleteMessage(m.Seq, m.FromAgent); err != nil && !os.IsNotExist(err) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
