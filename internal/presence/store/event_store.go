package store

import (
	"context"
	"time"
)

// PresenceEventRecord captures a single toggle decision for the audit log.
// PlaceID is zero when the request never resolved a place.
type PresenceEventRecord struct {
	PlaceID   int64
	UserCode  string
	Success   bool
	Category  string
	Reason    string
	DecidedAt time.Time
}

// PresenceEventStore persists toggle decisions as an append-only audit log.
type PresenceEventStore interface {
	RecordEvent(ctx context.Context, rec PresenceEventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
