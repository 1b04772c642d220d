// Package memory holds in-process stores for tests and throwaway dev runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

var _ store.Presence = (*Store)(nil)

type grantKey struct{ placeID, userID int64 }

type Store struct {
	mu     sync.RWMutex
	places map[int64]types.Place
	users  map[string]types.User // by code
	grants map[grantKey]struct{}
	visits []types.Visit // index = id-1
	loans  []types.Loan  // index = id-1
	nextID int64
}

func New() *Store {
	return &Store{
		places: make(map[int64]types.Place),
		users:  make(map[string]types.User),
		grants: make(map[grantKey]struct{}),
	}
}

// ── Provisioning ─────────────────────────────────────────────────────────────

func (s *Store) AddPlace(p types.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[p.ID] = p
}

// AddUser assigns an id when u.ID is zero and returns the stored user.
func (s *Store) AddUser(u types.User) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	}
	s.users[u.Code] = u
	return u
}

func (s *Store) Grant(placeID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{placeID, userID}] = struct{}{}
}

// ── PlaceStore / UserStore / GrantStore ──────────────────────────────────────

func (s *Store) FindPlace(_ context.Context, id int64, key string) (*types.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.places[id]
	if !ok || p.AccessKey != key {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) SetAccessKey(_ context.Context, id int64, key string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[id]
	if !ok {
		return fmt.Errorf("SetAccessKey place %d: %w", id, store.ErrNotFound)
	}
	p.AccessKey = key
	s.places[id] = p
	return nil
}

func (s *Store) FindUserByCode(_ context.Context, code string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[code]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) HasGrant(_ context.Context, placeID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[grantKey{placeID, userID}]
	return ok, nil
}
