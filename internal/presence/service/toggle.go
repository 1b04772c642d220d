package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// Toggle authenticates the user at the place and flips their presence.
//
// An unknown place (or wrong key) is returned as ErrNotFound. Everything the
// operator should see (unknown code, wrong PIN, no grant, wrong place) comes
// back as a Result with Success=false.
func (t *Tracker) Toggle(ctx context.Context, req types.ToggleRequest) (types.Result, error) {
	start := time.Now()

	if req.PlaceID <= 0 {
		return types.Result{}, ErrInvalidPlaceID
	}
	code := normalizeCode(req.Code)
	if code == "" {
		return types.Result{}, ErrInvalidCode
	}

	var s Snapshot
	s, err := t.ResolvePlace(ctx, s, req.PlaceID, req.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			t.recordEvent(ctx, 0, code, false, types.CategoryWarning, types.ReasonUnknownPlace)
			t.metrics.observe(types.ReasonUnknownPlace, false, time.Since(start))
		}
		return types.Result{}, err
	}

	res, err := t.toggle(ctx, s, code, req.PIN)
	if err != nil {
		t.metrics.observeError(time.Since(start))
		return types.Result{}, err
	}

	t.recordEvent(ctx, req.PlaceID, code, res.Success, res.Message.Category, res.Reason)
	t.metrics.observe(res.Reason, res.Success, time.Since(start))
	t.logger.Printf("toggle place=%d code=%s success=%t reason=%s", req.PlaceID, code, res.Success, res.Reason)
	return res, nil
}

func (t *Tracker) toggle(ctx context.Context, s Snapshot, code, pin string) (types.Result, error) {
	s, err := t.ResolveUser(ctx, s, code, pin)
	switch {
	case errors.Is(err, ErrNotFound):
		return warning(types.ReasonUnknownUser,
			fmt.Sprintf("No user exists with code: %s", code)), nil
	case errors.Is(err, ErrInvalidCredential):
		return warning(types.ReasonInvalidPIN, "Incorrect PIN for user"), nil
	case err != nil:
		return types.Result{}, err
	}

	_, res, err := t.ValidateEntryOrExit(ctx, s)
	return res, err
}

// recordEvent writes the decision to the audit log. A failed audit write is
// logged and otherwise ignored; the presence change has already happened.
func (t *Tracker) recordEvent(ctx context.Context, placeID int64, code string, ok bool, category, reason string) {
	if t.events == nil {
		return
	}
	err := t.events.RecordEvent(ctx, store.PresenceEventRecord{
		PlaceID:   placeID,
		UserCode:  code,
		Success:   ok,
		Category:  category,
		Reason:    reason,
		DecidedAt: t.now(),
	})
	if err != nil {
		t.logger.Printf("audit write failed place=%d code=%s: %v", placeID, code, err)
	}
}
