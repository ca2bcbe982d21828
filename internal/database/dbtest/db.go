// Package dbtest provisions migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/database"
)

// SetupSQLite creates a SQLite database in t.TempDir(), applies the embedded
// migrations and returns it. The handle is closed via t.Cleanup.
func SetupSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	return setup(t, filepath.Join(t.TempDir(), "slotswap.db"))
}

// SetupSQLiteWithReader is SetupSQLite plus a query-only pool on the same
// file, as the server runs it.
func SetupSQLiteWithReader(t *testing.T) (write, read *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slotswap.db")
	write = setup(t, path)

	read, err := database.OpenSQLiteReader(path)
	if err != nil {
		t.Fatalf("dbtest: open sqlite reader: %v", err)
	}
	t.Cleanup(func() { _ = read.Close() })
	return write, read
}

func setup(t *testing.T, path string) *sqlx.DB {
	t.Helper()

	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("dbtest: open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := database.Migrate(ctx, db.DB, database.SQLite); err != nil {
		t.Fatalf("dbtest: migrate: %v", err)
	}
	return db
}

// InsertUser writes a bare user row so slots and requests can reference it.
func InsertUser(t *testing.T, db *sqlx.DB, id, displayName string) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, id+"@example.test", displayName, "x", time.Now().UnixMilli(),
	)
	if err != nil {
		t.Fatalf("dbtest: insert user %s: %v", id, err)
	}
}
