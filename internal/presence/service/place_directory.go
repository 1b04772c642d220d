package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
)

// PlaceDirectory administers places. Rotating a key invalidates every QR
// code or link printed with the old one.
type PlaceDirectory struct {
	store  store.PlaceStore
	newKey func() string
}

func NewPlaceDirectory(st store.PlaceStore) *PlaceDirectory {
	return &PlaceDirectory{store: st, newKey: randomKey}
}

func (d *PlaceDirectory) RotateKey(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", ErrInvalidPlaceID
	}
	key := d.newKey()
	err := d.store.SetAccessKey(ctx, id, key, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("place %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// randomKey is 32 hex characters from a v4 UUID.
func randomKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
