package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/presence/internal/db"
)

type GrantStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewGrantStore(db *sql.DB, writer *dbpkg.Worker) *GrantStore {
	return &GrantStore{db: db, writer: writer}
}

func (s *GrantStore) HasGrant(ctx context.Context, placeID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM access_grants WHERE place_id = ? AND user_id = ?;
`, placeID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("HasGrant query: %w", err)
	}
	return n > 0, nil
}

// Grant is idempotent.
func (s *GrantStore) Grant(ctx context.Context, placeID, userID int64, t time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO access_grants(place_id, user_id, created_at_ms)
VALUES (?, ?, ?);
`, placeID, userID, toMs(t)); err != nil {
			return fmt.Errorf("Grant insert: %w", err)
		}
		return nil
	})
}
