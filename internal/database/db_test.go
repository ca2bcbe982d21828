package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	t.Parallel()

	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, MySQL, d)

	d, err = ParseDialect("SQLite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = ParseDialect("postgres")
	assert.Error(t, err)
}

func TestLockSuffix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, " FOR UPDATE", MySQL.LockSuffix())
	assert.Empty(t, SQLite.LockSuffix())
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestMigrateSQLite(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "swap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	applied, err := Migrate(ctx, db.DB, SQLite)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, applied)

	// second run is a no-op
	applied, err = Migrate(ctx, db.DB, SQLite)
	require.NoError(t, err)
	assert.Empty(t, applied)

	v, err := Version(ctx, db.DB, SQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	var n int
	require.NoError(t, db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'event_slots', 'swap_requests')`))
	assert.Equal(t, 3, n)
}

func TestSQLiteEnforcesSlotRange(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "swap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	_, err = Migrate(ctx, db.DB, SQLite)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES ('u1', 'a@x.io', 'A', 'h', 0)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO event_slots (id, owner_id, title, start_time, end_time, trade_status, created_at, updated_at)
		VALUES ('s1', 'u1', 'standup', 200, 100, 'BUSY', 0, 0)`)
	assert.Error(t, err, "inverted range must violate the check constraint")

	_, err = db.ExecContext(ctx, `INSERT INTO event_slots (id, owner_id, title, start_time, end_time, trade_status, created_at, updated_at)
		VALUES ('s2', 'missing', 'standup', 100, 200, 'BUSY', 0, 0)`)
	assert.Error(t, err, "foreign keys must be enforced")
}

func TestSQLiteReaderIsQueryOnlyAndNotBlockedByWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "swap.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	_, err = Migrate(ctx, db.DB, SQLite)
	require.NoError(t, err)

	rd, err := ConnectReader(SQLite, ConnConfig{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rd.Close() })

	_, err = rd.ExecContext(ctx, `INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES ('u1', 'a@x.io', 'A', 'h', 0)`)
	assert.Error(t, err, "reader pool must not write")

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES ('u2', 'b@x.io', 'B', 'h', 0)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, rd.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 0, n, "uncommitted rows stay invisible")

	require.NoError(t, tx.Commit())
	require.NoError(t, rd.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 1, n)
}

func TestConnectReaderMySQLUsesMainPool(t *testing.T) {
	t.Parallel()

	rd, err := ConnectReader(MySQL, ConnConfig{})
	require.NoError(t, err)
	assert.Nil(t, rd)
}
