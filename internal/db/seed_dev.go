package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Seed describes the places, users and grants loaded into a dev database.
type Seed struct {
	Places []SeedPlace `yaml:"places"`
	Users  []SeedUser  `yaml:"users"`
	Grants []SeedGrant `yaml:"grants"`
}

type SeedPlace struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Key      string `yaml:"key"`
	ParentID *int64 `yaml:"parent_id,omitempty"`
}

type SeedUser struct {
	Code string `yaml:"code"`
	PIN  string `yaml:"pin"` // plain text in the file, hashed on insert
	Name string `yaml:"name,omitempty"`
}

type SeedGrant struct {
	Place int64  `yaml:"place"`
	User  string `yaml:"user"` // user code
}

// DefaultSeed is used in dev when no seed file is configured.
func DefaultSeed() Seed {
	return Seed{
		Places: []SeedPlace{{ID: 1, Name: "Main Lab", Key: "dev-key"}},
		Users:  []SeedUser{{Code: "dev-001", PIN: "0000", Name: "Dev User"}},
		Grants: []SeedGrant{{Place: 1, User: "dev-001"}},
	}
}

func LoadSeedFile(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return s, nil
}

// SeedDev upserts the seed in one transaction. Running it twice is harmless;
// PINs and keys from the seed win over whatever is stored.
func SeedDev(ctx context.Context, db *sql.DB, seed Seed) error {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range seed.Places {
		if p.ID <= 0 || strings.TrimSpace(p.Name) == "" || p.Key == "" {
			return fmt.Errorf("seed place %d: id, name and key are required", p.ID)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO places(place_id, name, access_key, parent_id, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(place_id) DO UPDATE SET
  name = excluded.name,
  access_key = excluded.access_key,
  parent_id = excluded.parent_id,
  updated_at_ms = excluded.updated_at_ms;`,
			p.ID, p.Name, p.Key, p.ParentID, now, now); err != nil {
			return fmt.Errorf("seed place %d: %w", p.ID, err)
		}
	}

	for _, u := range seed.Users {
		code := strings.TrimSpace(u.Code)
		if code == "" || u.PIN == "" {
			return fmt.Errorf("seed user %q: code and pin are required", u.Code)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.PIN), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed user %s: hash pin: %w", code, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(code, pin_hash, display_name, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
  pin_hash = excluded.pin_hash,
  display_name = excluded.display_name;`,
			code, hash, u.Name, now); err != nil {
			return fmt.Errorf("seed user %s: %w", code, err)
		}
	}

	for _, g := range seed.Grants {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO access_grants(place_id, user_id, created_at_ms)
SELECT ?, user_id, ? FROM users WHERE code = ?;`,
			g.Place, now, strings.TrimSpace(g.User))
		if err != nil {
			return fmt.Errorf("seed grant %d/%s: %w", g.Place, g.User, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Either already granted or the user is missing; only the latter is an error.
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE code = ?;`,
				strings.TrimSpace(g.User)).Scan(&exists)
			if err != nil {
				return fmt.Errorf("seed grant %d/%s: %w", g.Place, g.User, err)
			}
			if exists == 0 {
				return fmt.Errorf("seed grant %d/%s: unknown user", g.Place, g.User)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	return nil
}
