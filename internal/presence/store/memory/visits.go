package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

func (s *Store) ActiveVisit(_ context.Context, userID int64) (*types.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.visits {
		if v.UserID == userID && v.Open() {
			return &v, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateVisit(_ context.Context, userID, placeID int64, enteredAt time.Time) (types.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := types.Visit{
		ID:        int64(len(s.visits) + 1),
		UserID:    userID,
		PlaceID:   placeID,
		EnteredAt: enteredAt.UTC(),
	}
	s.visits = append(s.visits, v)
	return v, nil
}

func (s *Store) CloseVisit(_ context.Context, visitID int64, exitedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(visitID - 1)
	if i < 0 || i >= len(s.visits) || !s.visits[i].Open() {
		return fmt.Errorf("CloseVisit visit %d: %w", visitID, store.ErrNotFound)
	}
	t := exitedAt.UTC()
	s.visits[i].ExitedAt = &t
	return nil
}

// Visits returns a copy of every visit, in creation order.
func (s *Store) Visits() []types.Visit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Visit, len(s.visits))
	copy(out, s.visits)
	return out
}
