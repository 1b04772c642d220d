package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/presence/internal/db"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

type VisitStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewVisitStore(db *sql.DB, writer *dbpkg.Worker) *VisitStore {
	return &VisitStore{db: db, writer: writer}
}

// ActiveVisit uses idx_visits_open. If more than one open row exists (see
// the concurrency note on the tracker) the oldest one wins.
func (s *VisitStore) ActiveVisit(ctx context.Context, userID int64) (*types.Visit, error) {
	var (
		v         types.Visit
		enteredMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT visit_id, user_id, place_id, entered_at_ms
FROM visits
WHERE user_id = ? AND exited_at_ms IS NULL
ORDER BY visit_id
LIMIT 1;
`, userID).Scan(&v.ID, &v.UserID, &v.PlaceID, &enteredMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ActiveVisit query: %w", err)
	}
	v.EnteredAt = fromMs(enteredMs)
	return &v, nil
}

func (s *VisitStore) CreateVisit(ctx context.Context, userID, placeID int64, enteredAt time.Time) (types.Visit, error) {
	enteredMs := toMs(enteredAt)
	v := types.Visit{
		UserID:    userID,
		PlaceID:   placeID,
		EnteredAt: fromMs(enteredMs),
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO visits(user_id, place_id, entered_at_ms)
VALUES (?, ?, ?);
`, userID, placeID, enteredMs)
		if err != nil {
			return fmt.Errorf("CreateVisit insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("CreateVisit last id: %w", err)
		}
		v.ID = id
		return nil
	})
	if err != nil {
		return types.Visit{}, err
	}
	return v, nil
}

// CloseVisit only touches open visits; closing twice is ErrNotFound.
func (s *VisitStore) CloseVisit(ctx context.Context, visitID int64, exitedAt time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE visits
SET exited_at_ms = ?
WHERE visit_id = ? AND exited_at_ms IS NULL;
`, toMs(exitedAt), visitID)
		if err != nil {
			return fmt.Errorf("CloseVisit update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("CloseVisit visit %d: %w", visitID, store.ErrNotFound)
		}
		return nil
	})
}

// Visit loads a single visit by id, open or closed.
func (s *VisitStore) Visit(ctx context.Context, visitID int64) (*types.Visit, error) {
	var (
		v         types.Visit
		enteredMs int64
		exitedMs  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT visit_id, user_id, place_id, entered_at_ms, exited_at_ms
FROM visits
WHERE visit_id = ?;
`, visitID).Scan(&v.ID, &v.UserID, &v.PlaceID, &enteredMs, &exitedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Visit query: %w", err)
	}
	v.EnteredAt = fromMs(enteredMs)
	v.ExitedAt = fromNullMs(exitedMs)
	return &v, nil
}
