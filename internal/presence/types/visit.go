package types

import "time"

// Visit is one continuous presence interval of a user at a place.
// ExitedAt is nil while the user is still present.
type Visit struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	PlaceID   int64      `json:"place_id"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

func (v Visit) Open() bool { return v.ExitedAt == nil }

// Loan is a resource handed out during a visit.
//
// ReturnVisitID points at a later visit during which the resource is
// expected to come back; it is filled in when a user re-enters a place
// while a loan from an earlier, closed visit is still unreturned.
type Loan struct {
	ID            int64      `json:"id"`
	VisitID       int64      `json:"visit_id"`
	ReturnVisitID *int64     `json:"return_visit_id,omitempty"`
	Resource      string     `json:"resource,omitempty"`
	HandedOutAt   *time.Time `json:"handed_out_at,omitempty"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
}

// Outstanding reports whether the resource was handed out and never returned.
func (l Loan) Outstanding() bool {
	return l.HandedOutAt != nil && l.ReturnedAt == nil
}
