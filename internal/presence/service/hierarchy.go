package service

import (
	"context"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// PlaceHierarchy tells whether one place contains another.
//
// Presence at a parent place does not yet allow entry to (or exit from) a
// child place: the tracker asks the hierarchy only to log such cases. Turning
// that into an allowed transition needs a product decision on what an open
// visit at the parent means.
type PlaceHierarchy interface {
	IsAncestor(ctx context.Context, ancestorID int64, place types.Place) (bool, error)
}

// FlatHierarchy declares no nesting at all.
type FlatHierarchy struct{}

func (FlatHierarchy) IsAncestor(context.Context, int64, types.Place) (bool, error) {
	return false, nil
}
