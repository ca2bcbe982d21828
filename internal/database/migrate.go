package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func gooseDialect(d Dialect) goose.Dialect {
	if d == SQLite {
		return goose.DialectSQLite3
	}
	return goose.DialectMySQL
}

func newProvider(db *sql.DB, d Dialect) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gooseDialect(d), db, sub)
}

// Migrate applies all pending embedded migrations and returns the versions
// that were applied.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) ([]int64, error) {
	provider, err := newProvider(db, d)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	provider, err := newProvider(db, d)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
