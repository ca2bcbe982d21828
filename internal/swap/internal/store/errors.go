package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/iliyamo/slotswap/internal/model"
)

// MySQL server error numbers the store distinguishes.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlCheckViolated   = 3819
)

// mapError translates driver errors into the model taxonomy. Lock timeouts
// and deadlocks surface as conflicts: the caller re-reads and decides.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %v", model.ErrAlreadyExists, err)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: %v", model.ErrNotFound, err)
		case mysqlDeadlock, mysqlLockWaitTimeout, mysqlRowIsReferenced:
			return fmt.Errorf("%w: %v", model.ErrConflict, err)
		case mysqlCheckViolated:
			return fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		return err
	}

	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", model.ErrAlreadyExists, err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", model.ErrNotFound, err)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		// primary result code lives in the low byte
		switch liteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", model.ErrConflict, err)
		}
	}
	return err
}
