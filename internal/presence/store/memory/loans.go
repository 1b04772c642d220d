package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// visit must be called with mu held.
func (s *Store) visit(id int64) (types.Visit, bool) {
	i := int(id - 1)
	if i < 0 || i >= len(s.visits) {
		return types.Visit{}, false
	}
	return s.visits[i], true
}

func (s *Store) ForgottenLoans(_ context.Context, userID, placeID int64) ([]types.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Loan
	for _, l := range s.loans {
		if l.ReturnedAt != nil {
			continue
		}
		v, ok := s.visit(l.VisitID)
		if ok && !v.Open() && v.UserID == userID && v.PlaceID == placeID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) SetReturnVisit(_ context.Context, loanID, visitID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(loanID - 1)
	if i < 0 || i >= len(s.loans) {
		return fmt.Errorf("SetReturnVisit loan %d: %w", loanID, store.ErrNotFound)
	}
	s.loans[i].ReturnVisitID = &visitID
	return nil
}

func (s *Store) HasOutstandingLoan(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.loans {
		if !l.Outstanding() {
			continue
		}
		if v, ok := s.visit(l.VisitID); ok && v.Open() && v.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HandOut(_ context.Context, visitID int64, resource string, t time.Time) (types.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visit(visitID); !ok {
		return types.Loan{}, fmt.Errorf("HandOut visit %d: %w", visitID, store.ErrNotFound)
	}
	at := t.UTC()
	l := types.Loan{
		ID:          int64(len(s.loans) + 1),
		VisitID:     visitID,
		Resource:    resource,
		HandedOutAt: &at,
	}
	s.loans = append(s.loans, l)
	return l, nil
}

func (s *Store) MarkReturned(_ context.Context, loanID int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(loanID - 1)
	if i < 0 || i >= len(s.loans) || s.loans[i].ReturnedAt != nil {
		return fmt.Errorf("MarkReturned loan %d: %w", loanID, store.ErrNotFound)
	}
	at := t.UTC()
	s.loans[i].ReturnedAt = &at
	return nil
}

// Loans returns a copy of every loan, in creation order.
func (s *Store) Loans() []types.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Loan, len(s.loans))
	copy(out, s.loans)
	return out
}
