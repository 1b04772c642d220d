package service_test

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/service"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store/memory"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

const (
	labID    = int64(1)
	labKey   = "lab-key"
	shopID   = int64(2)
	shopKey  = "shop-key"
	userCode = "A001"
	userPIN  = "1234"
)

// stepClock returns a strictly increasing time, one minute per call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type fixture struct {
	store  *memory.Store
	events *memory.PresenceEventStore
	user   types.User
	logs   *bytes.Buffer
}

func hashPIN(t *testing.T, pin string) []byte {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	return h
}

// newFixture seeds two places and one user with a grant for the lab only.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	st.AddPlace(types.Place{ID: labID, Name: "Lab A", AccessKey: labKey})
	st.AddPlace(types.Place{ID: shopID, Name: "Workshop", AccessKey: shopKey})
	u := st.AddUser(types.User{Code: userCode, PINHash: hashPIN(t, userPIN), DisplayName: "Ada"})
	st.Grant(labID, u.ID)

	return &fixture{
		store:  st,
		events: memory.NewPresenceEventStore(),
		user:   u,
		logs:   &bytes.Buffer{},
	}
}

func (f *fixture) logger() *log.Logger { return log.New(f.logs, "", 0) }

func (f *fixture) tracker(policy service.ExitPolicy) *service.Tracker {
	return service.NewTracker(service.TrackerDeps{
		Store:  f.store,
		Events: f.events,
		Policy: policy,
		Logger: f.logger(),
		Now:    newStepClock().Now,
	})
}

// resolved returns a snapshot with place and user resolved.
func resolved(t *testing.T, tr *service.Tracker, placeID int64, key string) service.Snapshot {
	t.Helper()
	ctx := context.Background()

	s, err := tr.ResolvePlace(ctx, service.Snapshot{}, placeID, key)
	if err != nil {
		t.Fatalf("ResolvePlace: %v", err)
	}
	s, err = tr.ResolveUser(ctx, s, userCode, userPIN)
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	return s
}

func openVisits(st *memory.Store, userID int64) []types.Visit {
	var out []types.Visit
	for _, v := range st.Visits() {
		if v.UserID == userID && v.Open() {
			out = append(out, v)
		}
	}
	return out
}
