package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/service"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store/memory"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// ── Resolution ───────────────────────────────────────────────────────────────

func TestResolvePlace_NoMatch_NotFound(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	cases := []struct {
		id  int64
		key string
	}{
		{labID, "wrong-key"},
		{labID, ""},
		{99, labKey},
		{shopID, labKey},
	}
	for _, c := range cases {
		s, err := tr.ResolvePlace(context.Background(), service.Snapshot{}, c.id, c.key)
		if !errors.Is(err, service.ErrNotFound) {
			t.Errorf("id=%d key=%q: expected ErrNotFound, got %v", c.id, c.key, err)
		}
		if s.State() != service.StateNoPlace {
			t.Errorf("id=%d key=%q: expected state no_place, got %s", c.id, c.key, s.State())
		}
	}
}

func TestResolvePlace_Match_PlaceResolved(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	s, err := tr.ResolvePlace(context.Background(), service.Snapshot{}, labID, labKey)
	if err != nil {
		t.Fatalf("ResolvePlace: %v", err)
	}
	if s.State() != service.StatePlaceResolved {
		t.Errorf("expected place_resolved, got %s", s.State())
	}
	p, ok := s.Place()
	if !ok || p.Name != "Lab A" {
		t.Errorf("expected Lab A, got %+v", p)
	}
}

func TestResolveUser_UnknownCode_NotFound(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	_, err := tr.ResolveUser(context.Background(), service.Snapshot{}, "nobody", userPIN)
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUser_WrongPIN_InvalidCredential(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	s, err := tr.ResolveUser(context.Background(), service.Snapshot{}, userCode, "9999")
	if !errors.Is(err, service.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, ok := s.User(); ok {
		t.Error("user should not be set after a failed PIN check")
	}
}

func TestResolveUser_OK_UserResolved(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	s := resolved(t, tr, labID, labKey)
	if s.State() != service.StateUserResolved {
		t.Errorf("expected user_resolved, got %s", s.State())
	}
}

// ── Preconditions ────────────────────────────────────────────────────────────

func TestPreconditions(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	placeOnly, err := tr.ResolvePlace(ctx, service.Snapshot{}, labID, labKey)
	if err != nil {
		t.Fatalf("ResolvePlace: %v", err)
	}
	userOnly, err := tr.ResolveUser(ctx, service.Snapshot{}, userCode, userPIN)
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	both := resolved(t, tr, labID, labKey)

	checks := []struct {
		name string
		run  func() error
	}{
		{"DetermineActiveVisit without user", func() error {
			_, err := tr.DetermineActiveVisit(ctx, placeOnly)
			return err
		}},
		{"CheckAccess without user", func() error {
			_, err := tr.CheckAccess(ctx, placeOnly)
			return err
		}},
		{"CheckAccess without place", func() error {
			_, err := tr.CheckAccess(ctx, userOnly)
			return err
		}},
		{"RecordEntry without user", func() error {
			_, err := tr.RecordEntry(ctx, placeOnly)
			return err
		}},
		{"RecordEntry without place", func() error {
			_, err := tr.RecordEntry(ctx, userOnly)
			return err
		}},
		{"RecordExit without active visit", func() error {
			_, err := tr.RecordExit(ctx, both)
			return err
		}},
		{"ValidateExit without active visit", func() error {
			_, _, err := tr.ValidateExit(ctx, both)
			return err
		}},
		{"HasOutstandingLoan without user", func() error {
			_, err := tr.HasOutstandingLoan(ctx, placeOnly)
			return err
		}},
	}
	for _, c := range checks {
		if err := c.run(); !errors.Is(err, service.ErrPrecondition) {
			t.Errorf("%s: expected ErrPrecondition, got %v", c.name, err)
		}
	}

	if len(f.store.Visits()) != 0 {
		t.Error("precondition failures must not write visits")
	}
}

// ── Access ───────────────────────────────────────────────────────────────────

func TestCheckAccess_GrantDecides(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	ok, err := tr.CheckAccess(ctx, resolved(t, tr, labID, labKey))
	if err != nil || !ok {
		t.Errorf("lab: expected access, got %v (err=%v)", ok, err)
	}
	ok, err = tr.CheckAccess(ctx, resolved(t, tr, shopID, shopKey))
	if err != nil || ok {
		t.Errorf("workshop: expected no access, got %v (err=%v)", ok, err)
	}
}

// ── Entry / exit ─────────────────────────────────────────────────────────────

func TestRecordEntry_Absent_CreatesOneOpenVisit(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})

	s, err := tr.RecordEntry(context.Background(), resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if s.State() != service.StatePresent {
		t.Errorf("expected present, got %s", s.State())
	}

	open := openVisits(f.store, f.user.ID)
	if len(open) != 1 {
		t.Fatalf("expected 1 open visit, got %d", len(open))
	}
	if open[0].PlaceID != labID {
		t.Errorf("expected visit at place %d, got %d", labID, open[0].PlaceID)
	}
	if open[0].EnteredAt.IsZero() {
		t.Error("expected entered_at to be set")
	}
	if active, _ := s.ActiveVisit(); active.ID != open[0].ID {
		t.Errorf("snapshot holds visit %d, store has %d", active.ID, open[0].ID)
	}
}

func TestRecordEntry_AlreadyActive_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	if _, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey)); err != nil {
		t.Fatalf("first RecordEntry: %v", err)
	}

	// Second entry anywhere, including another place, is refused.
	_, err := tr.RecordEntry(ctx, resolved(t, tr, shopID, shopKey))
	if !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if n := len(f.store.Visits()); n != 1 {
		t.Errorf("expected no new visit, store has %d", n)
	}
}

func TestRecordEntry_StaleSnapshot_Rederived(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	stale, err := tr.DetermineActiveVisit(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("DetermineActiveVisit: %v", err)
	}
	if stale.State() != service.StateAbsent {
		t.Fatalf("expected absent, got %s", stale.State())
	}

	if _, err := f.store.CreateVisit(ctx, f.user.ID, shopID, time.Now()); err != nil {
		t.Fatalf("CreateVisit: %v", err)
	}

	if _, err := tr.RecordEntry(ctx, stale); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from re-derived state, got %v", err)
	}
	if stale.State() != service.StateAbsent {
		t.Error("the caller's snapshot must not change")
	}
}

func TestRecordExit_ClosesVisit(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	s, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	s, err = tr.RecordExit(ctx, s)
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if s.State() != service.StateAbsent {
		t.Errorf("expected absent after exit, got %s", s.State())
	}

	visits := f.store.Visits()
	if len(visits) != 1 || visits[0].ExitedAt == nil {
		t.Fatalf("expected exactly one closed visit, got %+v", visits)
	}
	if !visits[0].ExitedAt.After(visits[0].EnteredAt) {
		t.Error("exit must come after entry")
	}

	again, err := tr.DetermineActiveVisit(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("DetermineActiveVisit: %v", err)
	}
	if _, ok := again.ActiveVisit(); ok {
		t.Error("expected no active visit after exit")
	}
}

// Nothing serializes the active-visit lookup with the insert. This test
// reproduces an interleaved entry landing between the two.
func TestRecordEntry_InterleavedEntry_BothVisitsOpen(t *testing.T) {
	f := newFixture(t)
	rs := &racingStore{Store: f.store, userID: f.user.ID, placeID: shopID}
	tr := service.NewTracker(service.TrackerDeps{Store: rs, Now: newStepClock().Now})

	s, err := tr.ResolvePlace(context.Background(), service.Snapshot{}, labID, labKey)
	if err != nil {
		t.Fatalf("ResolvePlace: %v", err)
	}
	s, err = tr.ResolveUser(context.Background(), s, userCode, userPIN)
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}

	if _, err := tr.RecordEntry(context.Background(), s); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if n := len(openVisits(f.store, f.user.ID)); n != 2 {
		t.Fatalf("expected the race to leave 2 open visits, got %d", n)
	}
}

// racingStore creates a visit for the user right after the first
// ActiveVisit lookup has answered "none".
type racingStore struct {
	*memory.Store
	userID, placeID int64
	fired           bool
}

func (r *racingStore) ActiveVisit(ctx context.Context, userID int64) (*types.Visit, error) {
	v, err := r.Store.ActiveVisit(ctx, userID)
	if err == nil && v == nil && !r.fired {
		r.fired = true
		if _, err := r.Store.CreateVisit(ctx, r.userID, r.placeID, time.Now()); err != nil {
			return nil, err
		}
	}
	return v, err
}

// ── Composite decisions ──────────────────────────────────────────────────────

func TestValidateEntryOrExit_ToggleSemantics(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	_, res, err := tr.ValidateEntryOrExit(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !res.Success || res.Reason != types.ReasonEntered {
		t.Fatalf("expected entered, got %+v", res)
	}
	if res.Message.Category != types.CategorySuccess {
		t.Errorf("expected success category, got %q", res.Message.Category)
	}
	if !strings.Contains(res.Message.Text, userCode) || !strings.Contains(res.Message.Text, "Lab A") {
		t.Errorf("message should name user and place: %q", res.Message.Text)
	}

	visits := f.store.Visits()
	if len(visits) != 1 || !visits[0].Open() {
		t.Fatalf("expected one open visit, got %+v", visits)
	}
	visitID := visits[0].ID

	_, res, err = tr.ValidateEntryOrExit(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if !res.Success || res.Reason != types.ReasonExited {
		t.Fatalf("expected exited, got %+v", res)
	}
	if !strings.Contains(res.Message.Text, "left") {
		t.Errorf("exit message should mention leaving: %q", res.Message.Text)
	}

	visits = f.store.Visits()
	if len(visits) != 1 {
		t.Fatalf("second toggle must not create a visit, got %d", len(visits))
	}
	if visits[0].ID != visitID || visits[0].ExitedAt == nil {
		t.Errorf("expected visit %d to be closed, got %+v", visitID, visits[0])
	}
}

func TestValidateEntryOrExit_NoAccess_AlwaysRejected(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	check := func(label string) {
		t.Helper()
		_, res, err := tr.ValidateEntryOrExit(ctx, resolved(t, tr, shopID, shopKey))
		if err != nil {
			t.Fatalf("%s: %v", label, err)
		}
		if res.Success || res.Reason != types.ReasonNoAccess {
			t.Errorf("%s: expected no_access, got %+v", label, res)
		}
		if res.Message.Category != types.CategoryWarning {
			t.Errorf("%s: expected warning, got %q", label, res.Message.Category)
		}
		if !strings.Contains(res.Message.Text, "no access") {
			t.Errorf("%s: unexpected text %q", label, res.Message.Text)
		}
	}

	check("absent")

	// Present at the lab; the workshop still says no access.
	if _, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey)); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	check("present elsewhere")

	if n := len(openVisits(f.store, f.user.ID)); n != 1 {
		t.Errorf("expected lab visit to stay open, got %d open", n)
	}
}

func TestValidateEntryOrExit_ActiveElsewhere_WrongPlace(t *testing.T) {
	f := newFixture(t)
	f.store.Grant(shopID, f.user.ID)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	if _, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey)); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	_, res, err := tr.ValidateEntryOrExit(ctx, resolved(t, tr, shopID, shopKey))
	if err != nil {
		t.Fatalf("ValidateEntryOrExit: %v", err)
	}
	if res.Success || res.Reason != types.ReasonWrongPlace {
		t.Fatalf("expected wrong_place, got %+v", res)
	}
	if res.Message.Category != types.CategoryWarning {
		t.Errorf("expected warning, got %q", res.Message.Category)
	}

	open := openVisits(f.store, f.user.ID)
	if len(open) != 1 || open[0].PlaceID != labID {
		t.Errorf("lab visit must stay open, got %+v", open)
	}
}

type nestedHierarchy struct{}

func (nestedHierarchy) IsAncestor(context.Context, int64, types.Place) (bool, error) {
	return true, nil
}

func TestValidateExit_ParentPlace_StillRejected(t *testing.T) {
	f := newFixture(t)
	parent := labID
	f.store.AddPlace(types.Place{ID: shopID, Name: "Workshop", AccessKey: shopKey, ParentID: &parent})
	f.store.Grant(shopID, f.user.ID)

	tr := service.NewTracker(service.TrackerDeps{
		Store:     f.store,
		Hierarchy: nestedHierarchy{},
		Logger:    f.logger(),
		Now:       newStepClock().Now,
	})
	ctx := context.Background()

	if _, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey)); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	_, res, err := tr.ValidateEntryOrExit(ctx, resolved(t, tr, shopID, shopKey))
	if err != nil {
		t.Fatalf("ValidateEntryOrExit: %v", err)
	}
	if res.Success || res.Reason != types.ReasonWrongPlace {
		t.Errorf("nested places are not supported yet; expected wrong_place, got %+v", res)
	}
	if !strings.Contains(f.logs.String(), "nested presence not supported") {
		t.Errorf("expected nesting to be logged, got %q", f.logs.String())
	}
}

// ── Loans ────────────────────────────────────────────────────────────────────

func TestRecordEntry_RepairsForgottenLoan_SamePlaceOnly(t *testing.T) {
	f := newFixture(t)
	f.store.Grant(shopID, f.user.ID)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Earlier closed visits at both places, each with an unreturned loan.
	labVisit, _ := f.store.CreateVisit(ctx, f.user.ID, labID, now)
	labLoan, err := f.store.HandOut(ctx, labVisit.ID, "laptop-7", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("HandOut: %v", err)
	}
	_ = f.store.CloseVisit(ctx, labVisit.ID, now.Add(time.Hour))

	shopVisit, _ := f.store.CreateVisit(ctx, f.user.ID, shopID, now.Add(2*time.Hour))
	shopLoan, err := f.store.HandOut(ctx, shopVisit.ID, "drill-2", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("HandOut: %v", err)
	}
	_ = f.store.CloseVisit(ctx, shopVisit.ID, now.Add(3*time.Hour))

	s, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	active, _ := s.ActiveVisit()

	loans := f.store.Loans()
	got := loans[labLoan.ID-1]
	if got.ReturnVisitID == nil || *got.ReturnVisitID != active.ID {
		t.Errorf("lab loan should point at visit %d, got %v", active.ID, got.ReturnVisitID)
	}
	if other := loans[shopLoan.ID-1]; other.ReturnVisitID != nil {
		t.Errorf("workshop loan must not be linked, got %d", *other.ReturnVisitID)
	}
}

func TestRecordEntry_ReturnedLoan_NotRepaired(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	v, _ := f.store.CreateVisit(ctx, f.user.ID, labID, now)
	l, _ := f.store.HandOut(ctx, v.ID, "laptop-7", now)
	_ = f.store.MarkReturned(ctx, l.ID, now.Add(time.Minute))
	_ = f.store.CloseVisit(ctx, v.ID, now.Add(time.Hour))

	if _, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey)); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if got := f.store.Loans()[0]; got.ReturnVisitID != nil {
		t.Errorf("returned loan must not be linked, got %d", *got.ReturnVisitID)
	}
}

func TestHasOutstandingLoan(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	s, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey))
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if has, err := tr.HasOutstandingLoan(ctx, s); err != nil || has {
		t.Fatalf("expected no loan yet, got %v (err=%v)", has, err)
	}

	active, _ := s.ActiveVisit()
	l, err := f.store.HandOut(ctx, active.ID, "laptop-7", time.Now())
	if err != nil {
		t.Fatalf("HandOut: %v", err)
	}
	if has, _ := tr.HasOutstandingLoan(ctx, s); !has {
		t.Error("expected outstanding loan")
	}

	_ = f.store.MarkReturned(ctx, l.ID, time.Now())
	if has, _ := tr.HasOutstandingLoan(ctx, s); has {
		t.Error("returned loan is not outstanding")
	}
}

func TestValidateExit_OutstandingLoanPolicy(t *testing.T) {
	for _, block := range []bool{false, true} {
		f := newFixture(t)
		tr := f.tracker(service.ExitPolicy{BlockOnOutstandingLoan: block})
		ctx := context.Background()

		s, err := tr.RecordEntry(ctx, resolved(t, tr, labID, labKey))
		if err != nil {
			t.Fatalf("block=%t RecordEntry: %v", block, err)
		}
		active, _ := s.ActiveVisit()
		if _, err := f.store.HandOut(ctx, active.ID, "laptop-7", time.Now()); err != nil {
			t.Fatalf("block=%t HandOut: %v", block, err)
		}

		_, res, err := tr.ValidateExit(ctx, s)
		if err != nil {
			t.Fatalf("block=%t ValidateExit: %v", block, err)
		}

		if block {
			if res.Success || res.Reason != types.ReasonOutstandingLoan {
				t.Errorf("block=true: expected outstanding_loan, got %+v", res)
			}
			if len(openVisits(f.store, f.user.ID)) != 1 {
				t.Error("block=true: visit must stay open")
			}
		} else {
			if !res.Success || res.Reason != types.ReasonExited {
				t.Errorf("block=false: expected exited, got %+v", res)
			}
			if len(openVisits(f.store, f.user.ID)) != 0 {
				t.Error("block=false: visit should be closed")
			}
		}
	}
}

// ── Invariant ────────────────────────────────────────────────────────────────

func TestAtMostOneOpenVisit_AcrossToggles(t *testing.T) {
	f := newFixture(t)
	f.store.Grant(shopID, f.user.ID)
	tr := f.tracker(service.ExitPolicy{})
	ctx := context.Background()

	places := []struct {
		id  int64
		key string
	}{{labID, labKey}, {shopID, shopKey}, {labID, labKey}, {labID, labKey}, {shopID, shopKey}, {shopID, shopKey}}

	for i, p := range places {
		if _, _, err := tr.ValidateEntryOrExit(ctx, resolved(t, tr, p.id, p.key)); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if n := len(openVisits(f.store, f.user.ID)); n > 1 {
			t.Fatalf("toggle %d: %d open visits", i, n)
		}
	}
}
