package memory

import "time"

// DrainRemote blocks until every queued remote write has been processed.
func (s *Store) DrainRemote() {
	if s.remote == nil {
		return
	}
	for s.remote.pending.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}
