package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/presence/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production, closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.OpenMemory(context.Background(), name)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func seedPlace(t *testing.T, conn *sql.DB, id int64, name, key string) {
	t.Helper()
	nowMs := time.Now().UTC().UnixMilli()
	if _, err := conn.ExecContext(context.Background(), `
INSERT INTO places(place_id, name, access_key, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?);`, id, name, key, nowMs, nowMs); err != nil {
		t.Fatalf("seed place %d: %v", id, err)
	}
}

func seedUser(t *testing.T, conn *sql.DB, code string, pinHash []byte) int64 {
	t.Helper()
	res, err := conn.ExecContext(context.Background(), `
INSERT INTO users(code, pin_hash, display_name, created_at_ms)
VALUES (?, ?, ?, ?);`, code, pinHash, "Test "+code, time.Now().UTC().UnixMilli())
	if err != nil {
		t.Fatalf("seed user %s: %v", code, err)
	}
	id, _ := res.LastInsertId()
	return id
}
