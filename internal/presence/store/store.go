package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// ErrNotFound is returned by mutations that target a row that does not
// exist. Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("store: not found")

type PlaceStore interface {
	// FindPlace matches id and access key exactly.
	FindPlace(ctx context.Context, id int64, key string) (*types.Place, error)
	SetAccessKey(ctx context.Context, id int64, key string, t time.Time) error
}

type UserStore interface {
	FindUserByCode(ctx context.Context, code string) (*types.User, error)
}

type GrantStore interface {
	HasGrant(ctx context.Context, placeID, userID int64) (bool, error)
}

type VisitStore interface {
	// ActiveVisit returns the user's visit with no exit time, if any.
	ActiveVisit(ctx context.Context, userID int64) (*types.Visit, error)
	CreateVisit(ctx context.Context, userID, placeID int64, enteredAt time.Time) (types.Visit, error)
	CloseVisit(ctx context.Context, visitID int64, exitedAt time.Time) error
}

type LoanStore interface {
	// ForgottenLoans lists unreturned loans of the user at the place whose
	// owning visit is already closed.
	ForgottenLoans(ctx context.Context, userID, placeID int64) ([]types.Loan, error)
	SetReturnVisit(ctx context.Context, loanID, visitID int64) error
	// HasOutstandingLoan reports a handed-out, unreturned loan owned by one
	// of the user's open visits.
	HasOutstandingLoan(ctx context.Context, userID int64) (bool, error)
}

// Presence bundles everything the tracker reads and writes.
type Presence interface {
	PlaceStore
	UserStore
	GrantStore
	VisitStore
	LoanStore
}
