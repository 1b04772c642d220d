package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
)

// PresenceEventStore is an in-memory append-only log of toggle decisions.
type PresenceEventStore struct {
	mu     sync.Mutex
	events []store.PresenceEventRecord
}

func NewPresenceEventStore() *PresenceEventStore {
	return &PresenceEventStore{}
}

func (s *PresenceEventStore) RecordEvent(_ context.Context, rec store.PresenceEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

func (s *PresenceEventStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.DecidedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded events. Test-only helper.
func (s *PresenceEventStore) Events() []store.PresenceEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.PresenceEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
