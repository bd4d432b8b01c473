package poller

import (
	"sync"

	"github.com/securekyc/kestrel/internal/domain"
)

// Store holds the current snapshot. Each poll cycle replaces it wholesale;
// readers always see a complete, internally consistent snapshot.
type Store struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the current snapshot, or nil before the first poll.
func (s *Store) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Replace installs a new snapshot.
func (s *Store) Replace(snap *domain.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Rows returns the current normalized rows, or nil before the first poll.
func (s *Store) Rows() []domain.NormalizedRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil
	}
	return s.snap.Rows
}
