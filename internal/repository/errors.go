// Package repository holds the account storage that lives outside the swap
// core: registration, login lookups and display-name resolution.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/iliyamo/slotswap/internal/model"
)

// ErrEmailExists is returned by Create when the email is already taken.
// It matches model.ErrAlreadyExists.
var ErrEmailExists = errors.Join(model.ErrAlreadyExists, errors.New("email already exists"))

// isDuplicate reports whether err is a unique constraint violation on either
// supported driver.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
