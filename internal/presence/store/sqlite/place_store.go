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

type PlaceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPlaceStore(db *sql.DB, writer *dbpkg.Worker) *PlaceStore {
	return &PlaceStore{db: db, writer: writer}
}

func (s *PlaceStore) FindPlace(ctx context.Context, id int64, key string) (*types.Place, error) {
	var (
		p      types.Place
		parent sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT place_id, name, access_key, parent_id
FROM places
WHERE place_id = ? AND access_key = ?;
`, id, key).Scan(&p.ID, &p.Name, &p.AccessKey, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindPlace query: %w", err)
	}
	p.ParentID = fromNullID(parent)
	return &p, nil
}

func (s *PlaceStore) SetAccessKey(ctx context.Context, id int64, key string, t time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE places
SET access_key = ?,
    updated_at_ms = ?
WHERE place_id = ?;
`, key, toMs(t), id)
		if err != nil {
			return fmt.Errorf("SetAccessKey update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("SetAccessKey place %d: %w", id, store.ErrNotFound)
		}
		return nil
	})
}
