package service

import "github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"

type State int

const (
	StateNoPlace State = iota
	StatePlaceResolved
	StateUserResolved
	StateAbsent
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateNoPlace:
		return "no_place"
	case StatePlaceResolved:
		return "place_resolved"
	case StateUserResolved:
		return "user_resolved"
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// Snapshot is the per-request view of what the tracker has resolved so far.
// It is a value: every tracker operation returns a new Snapshot and never
// touches the one it was given, so a stale snapshot stays visibly stale.
// The zero value is the NoPlace state.
type Snapshot struct {
	place   *types.Place
	user    *types.User
	active  *types.Visit
	checked bool // active visit has been looked up for user
}

func (s Snapshot) Place() (types.Place, bool) {
	if s.place == nil {
		return types.Place{}, false
	}
	return *s.place, true
}

func (s Snapshot) User() (types.User, bool) {
	if s.user == nil {
		return types.User{}, false
	}
	return *s.user, true
}

// ActiveVisit returns the open visit found by the last lookup. ok is false
// when the user is absent or the lookup has not happened.
func (s Snapshot) ActiveVisit() (types.Visit, bool) {
	if s.active == nil {
		return types.Visit{}, false
	}
	return *s.active, true
}

// State reports the furthest point reached. A snapshot can hold a user
// without a place; it then reports UserResolved or beyond, and operations
// that need the place still fail their precondition.
func (s Snapshot) State() State {
	switch {
	case s.user != nil && s.checked && s.active != nil:
		return StatePresent
	case s.user != nil && s.checked:
		return StateAbsent
	case s.user != nil:
		return StateUserResolved
	case s.place != nil:
		return StatePlaceResolved
	default:
		return StateNoPlace
	}
}

func (s Snapshot) withPlace(p types.Place) Snapshot {
	s.place = &p
	return s
}

// withUser forgets any active-visit lookup made for a previous user.
func (s Snapshot) withUser(u types.User) Snapshot {
	s.user = &u
	s.active = nil
	s.checked = false
	return s
}

func (s Snapshot) withActive(v *types.Visit) Snapshot {
	if v != nil {
		cp := *v
		v = &cp
	}
	s.active = v
	s.checked = true
	return s
}
