package database

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a connection. Queries are written in
// the portable subset; only row locking differs.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a DB_DRIVER value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported DB_DRIVER %q", s)
}

// LockSuffix is appended to SELECTs that must lock the rows they read.
// SQLite transactions are opened IMMEDIATE and hold the write lock already.
func (d Dialect) LockSuffix() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sqlx.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// times are stored as unix millis, so no parseTime is needed
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&loc=UTC&multiStatements=true",
		auth, host, port, name)

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database file for writing. A single
// connection serialises writers; transactions take the write lock on BEGIN so
// the precondition read and the update can never interleave with another
// writer. Readers belong on OpenSQLiteReader so they never queue behind an
// open write transaction.
func OpenSQLite(path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// OpenSQLiteReader opens a query-only pool on a database file that
// OpenSQLite already created. In WAL mode its connections read the last
// committed state while a writer holds the write lock.
func OpenSQLiteReader(path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=query_only(1)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	db.SetMaxOpenConns(sqliteReaders)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite reader: %w", err)
	}
	return db, nil
}

const sqliteReaders = 4

// ConnectReader opens a separate read pool where the dialect needs one. It
// returns nil for MySQL: InnoDB reads outside a transaction take no row
// locks, so the main pool serves them.
func ConnectReader(d Dialect, cfg ConnConfig) (*sqlx.DB, error) {
	if d == SQLite {
		return OpenSQLiteReader(cfg.Path)
	}
	return nil, nil
}

// Connect opens the database selected by dialect.
func Connect(d Dialect, cfg ConnConfig) (*sqlx.DB, error) {
	if d == SQLite {
		return OpenSQLite(cfg.Path)
	}
	return Open(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
}

// ConnConfig carries connection parameters for either dialect.
type ConnConfig struct {
	User, Pass, Host, Port, Name string
	Path                         string
}
