package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// UserStore is read-only; users are provisioned elsewhere (or by db.SeedDev).
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindUserByCode(ctx context.Context, code string) (*types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, code, pin_hash, display_name
FROM users
WHERE code = ?;
`, code).Scan(&u.ID, &u.Code, &u.PINHash, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindUserByCode query: %w", err)
	}
	return &u, nil
}
