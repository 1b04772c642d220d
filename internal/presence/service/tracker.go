package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// ExitPolicy holds the optional checks made before an exit is recorded.
type ExitPolicy struct {
	// BlockOnOutstandingLoan refuses the exit while the user still holds a
	// loan handed out during the open visit.
	BlockOnOutstandingLoan bool
}

type TrackerDeps struct {
	Store     store.Presence
	Events    store.PresenceEventStore // optional audit log
	Policy    ExitPolicy
	Hierarchy PlaceHierarchy // defaults to FlatHierarchy
	Metrics   *Metrics       // optional
	Logger    *log.Logger
	Now       func() time.Time
}

// Tracker moves users between absent and present at places.
//
// It holds no per-request state; callers thread a Snapshot through the
// operations. Reads and writes are not wrapped in a common transaction, so
// two concurrent entries for the same user can both pass the active-visit
// check and both create a visit.
type Tracker struct {
	store     store.Presence
	events    store.PresenceEventStore
	policy    ExitPolicy
	hierarchy PlaceHierarchy
	metrics   *Metrics
	logger    *log.Logger
	now       func() time.Time
}

func NewTracker(d TrackerDeps) *Tracker {
	t := &Tracker{
		store:     d.Store,
		events:    d.Events,
		policy:    d.Policy,
		hierarchy: d.Hierarchy,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
	}
	if t.hierarchy == nil {
		t.hierarchy = FlatHierarchy{}
	}
	if t.logger == nil {
		t.logger = log.New(io.Discard, "", 0)
	}
	if t.now == nil {
		t.now = func() time.Time { return time.Now().UTC() }
	}
	return t
}

func (t *Tracker) ResolvePlace(ctx context.Context, s Snapshot, id int64, key string) (Snapshot, error) {
	p, err := t.store.FindPlace(ctx, id, key)
	if err != nil {
		return s, err
	}
	if p == nil {
		return s, fmt.Errorf("place %d: %w", id, ErrNotFound)
	}
	return s.withPlace(*p), nil
}

func (t *Tracker) ResolveUser(ctx context.Context, s Snapshot, code, pin string) (Snapshot, error) {
	u, err := t.store.FindUserByCode(ctx, code)
	if err != nil {
		return s, err
	}
	if u == nil {
		return s, fmt.Errorf("user %q: %w", code, ErrNotFound)
	}

	err = bcrypt.CompareHashAndPassword(u.PINHash, []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return s, fmt.Errorf("user %q: %w", code, ErrInvalidCredential)
	}
	if err != nil {
		return s, fmt.Errorf("user %q: verify pin: %w", code, err)
	}
	return s.withUser(*u), nil
}

// DetermineActiveVisit looks up the user's open visit. The returned snapshot
// is Present when one exists and Absent otherwise.
func (t *Tracker) DetermineActiveVisit(ctx context.Context, s Snapshot) (Snapshot, error) {
	u, ok := s.User()
	if !ok {
		return s, fmt.Errorf("%w: user not set", ErrPrecondition)
	}
	v, err := t.store.ActiveVisit(ctx, u.ID)
	if err != nil {
		return s, err
	}
	return s.withActive(v), nil
}

func (t *Tracker) CheckAccess(ctx context.Context, s Snapshot) (bool, error) {
	p, u, err := placeAndUser(s)
	if err != nil {
		return false, err
	}
	return t.store.HasGrant(ctx, p.ID, u.ID)
}

// RecordEntry opens a visit at the snapshot's place. The active visit is
// looked up again here; whatever s says about it is ignored.
//
// After the visit is stored, unreturned loans from earlier closed visits to
// the same place are pointed at the new visit so they can be returned during
// it. That repair is best effort: failures are logged and the entry stands.
func (t *Tracker) RecordEntry(ctx context.Context, s Snapshot) (Snapshot, error) {
	p, u, err := placeAndUser(s)
	if err != nil {
		return s, err
	}

	s, err = t.DetermineActiveVisit(ctx, s)
	if err != nil {
		return s, err
	}
	if active, ok := s.ActiveVisit(); ok {
		t.noteNesting(ctx, active, p)
		return s, fmt.Errorf("%w: user already active elsewhere (visit %d at place %d)",
			ErrInvalidTransition, active.ID, active.PlaceID)
	}

	v, err := t.store.CreateVisit(ctx, u.ID, p.ID, t.now())
	if err != nil {
		return s, err
	}
	s = s.withActive(&v)

	if err := t.repairForgottenLoans(ctx, u.ID, p.ID, v.ID); err != nil {
		t.logger.Printf("loan repair failed user=%s place=%d visit=%d: %v", u.Code, p.ID, v.ID, err)
	}
	return s, nil
}

func (t *Tracker) repairForgottenLoans(ctx context.Context, userID, placeID, visitID int64) error {
	loans, err := t.store.ForgottenLoans(ctx, userID, placeID)
	if err != nil {
		return err
	}
	for _, l := range loans {
		if err := t.store.SetReturnVisit(ctx, l.ID, visitID); err != nil {
			return err
		}
		t.logger.Printf("loan %d carried over to visit %d", l.ID, visitID)
	}
	return nil
}

// RecordExit closes the snapshot's active visit. The returned snapshot is Absent.
func (t *Tracker) RecordExit(ctx context.Context, s Snapshot) (Snapshot, error) {
	active, ok := s.ActiveVisit()
	if !ok {
		return s, fmt.Errorf("%w: active visit not set", ErrPrecondition)
	}
	if err := t.store.CloseVisit(ctx, active.ID, t.now()); err != nil {
		return s, err
	}
	return s.withActive(nil), nil
}

// ValidateExit records the exit when the active visit belongs to the
// snapshot's place. A visit somewhere else is a rejection, not an error.
func (t *Tracker) ValidateExit(ctx context.Context, s Snapshot) (Snapshot, types.Result, error) {
	p, u, err := placeAndUser(s)
	if err != nil {
		return s, types.Result{}, err
	}
	active, ok := s.ActiveVisit()
	if !ok {
		return s, types.Result{}, fmt.Errorf("%w: active visit not set", ErrPrecondition)
	}

	if active.PlaceID != p.ID {
		t.noteNesting(ctx, active, p)
		return s, warning(types.ReasonWrongPlace,
			"You have an active entry in a different place"), nil
	}

	if t.policy.BlockOnOutstandingLoan {
		outstanding, err := t.HasOutstandingLoan(ctx, s)
		if err != nil {
			return s, types.Result{}, err
		}
		if outstanding {
			return s, warning(types.ReasonOutstandingLoan,
				"You have a loaned resource that has not been returned"), nil
		}
	}

	s, err = t.RecordExit(ctx, s)
	if err != nil {
		return s, types.Result{}, err
	}
	return s, success(types.ReasonExited,
		fmt.Sprintf("User with code: %s left %s", u.Code, p.Name)), nil
}

// ValidateEntryOrExit is the badge-in decision: without a grant nothing
// happens; otherwise an absent user enters and a present user exits.
func (t *Tracker) ValidateEntryOrExit(ctx context.Context, s Snapshot) (Snapshot, types.Result, error) {
	p, u, err := placeAndUser(s)
	if err != nil {
		return s, types.Result{}, err
	}

	granted, err := t.CheckAccess(ctx, s)
	if err != nil {
		return s, types.Result{}, err
	}
	if !granted {
		return s, warning(types.ReasonNoAccess,
			fmt.Sprintf("User %s has no access to %s", u.Code, p.Name)), nil
	}

	s, err = t.DetermineActiveVisit(ctx, s)
	if err != nil {
		return s, types.Result{}, err
	}
	if s.State() == StatePresent {
		return t.ValidateExit(ctx, s)
	}

	s, err = t.RecordEntry(ctx, s)
	if errors.Is(err, ErrInvalidTransition) {
		// Someone else opened a visit between the two lookups.
		return s, warning(types.ReasonAlreadyActive,
			fmt.Sprintf("User %s is already active in another place", u.Code)), nil
	}
	if err != nil {
		return s, types.Result{}, err
	}
	return s, success(types.ReasonEntered,
		fmt.Sprintf("User with code: %s entered %s", u.Code, p.Name)), nil
}

// HasOutstandingLoan reports whether the user holds a resource handed out
// during a visit that is still open.
func (t *Tracker) HasOutstandingLoan(ctx context.Context, s Snapshot) (bool, error) {
	u, ok := s.User()
	if !ok {
		return false, fmt.Errorf("%w: user not set", ErrPrecondition)
	}
	return t.store.HasOutstandingLoan(ctx, u.ID)
}

func (t *Tracker) noteNesting(ctx context.Context, active types.Visit, p types.Place) {
	nested, err := t.hierarchy.IsAncestor(ctx, active.PlaceID, p)
	if err != nil {
		t.logger.Printf("hierarchy lookup place=%d ancestor=%d: %v", p.ID, active.PlaceID, err)
		return
	}
	if nested {
		t.logger.Printf("visit %d is at parent place %d of place %d; nested presence not supported",
			active.ID, active.PlaceID, p.ID)
	}
}

func placeAndUser(s Snapshot) (types.Place, types.User, error) {
	u, ok := s.User()
	if !ok {
		return types.Place{}, types.User{}, fmt.Errorf("%w: user not set", ErrPrecondition)
	}
	p, ok := s.Place()
	if !ok {
		return types.Place{}, types.User{}, fmt.Errorf("%w: place not set", ErrPrecondition)
	}
	return p, u, nil
}

func success(reason, text string) types.Result {
	return types.Result{
		Success: true,
		Reason:  reason,
		Message: types.Message{Text: text, Category: types.CategorySuccess},
	}
}

func warning(reason, text string) types.Result {
	return types.Result{
		Reason:  reason,
		Message: types.Message{Text: text, Category: types.CategoryWarning},
	}
}

func normalizeCode(code string) string { return strings.TrimSpace(code) }
