package types

import "time"

// Account represents a registered user of the drive.
// Username and Email are stored lower-cased and are unique.
type Account struct {
	// ID is the opaque unique identifier of the account.
	ID string `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was registered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
