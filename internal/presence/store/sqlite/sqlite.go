// Package sqlite implements the presence stores on top of the schema in
// internal/db/migrations. Reads go straight to *sql.DB; every write runs
// on the shared db.Worker.
package sqlite

import (
	"database/sql"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/presence/internal/db"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
)

var _ store.Presence = (*Store)(nil)

// Store combines the individual stores into the view the tracker needs.
type Store struct {
	*PlaceStore
	*UserStore
	*GrantStore
	*VisitStore
	*LoanStore
}

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{
		PlaceStore: NewPlaceStore(db, writer),
		UserStore:  NewUserStore(db),
		GrantStore: NewGrantStore(db, writer),
		VisitStore: NewVisitStore(db, writer),
		LoanStore:  NewLoanStore(db, writer),
	}
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixMilli()
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMs(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMs(ms.Int64)
	return &t
}

func fromNullID(id sql.NullInt64) *int64 {
	if !id.Valid {
		return nil
	}
	v := id.Int64
	return &v
}
