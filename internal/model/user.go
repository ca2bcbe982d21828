package model

import "time"

// User represents an application user record as stored in the
// `users` table. The swap core never reads this table directly; it only
// resolves display names through a profile capability.
//
// Fields:
//
//	ID           – users.id (uuid).
//	Email        – unique, lower-cased email address.
//	DisplayName  – name shown to the other party of a swap.
//	PasswordHash – bcrypt hashed password.
//	CreatedAt    – timestamp of creation.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"-"`
}
