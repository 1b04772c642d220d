package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/presence/internal/db"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
)

type PresenceEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPresenceEventStore(db *sql.DB, writer *dbpkg.Worker) *PresenceEventStore {
	return &PresenceEventStore{db: db, writer: writer}
}

func (s *PresenceEventStore) RecordEvent(ctx context.Context, rec store.PresenceEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	// place_id stays NULL when the request never resolved a place.
	var placeID any
	if rec.PlaceID > 0 {
		placeID = rec.PlaceID
	}

	var success int
	if rec.Success {
		success = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO presence_events(
  place_id, user_code, success, category, reason, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?);
`,
			placeID, rec.UserCode, success, rec.Category, rec.Reason, toMs(rec.DecidedAt),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes events decided before cutoff, using
// idx_presence_events_time. Returns the number of rows deleted.
func (s *PresenceEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM presence_events
WHERE decided_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
