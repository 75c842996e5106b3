package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateIdentity is returned when a username or email is already taken.
var ErrDuplicateIdentity = errors.New("duplicate identity")

var (
	ErrDuplicateUsername = duplicateError{field: "username"}
	ErrDuplicateEmail    = duplicateError{field: "email"}
)

type duplicateError struct {
	field string
}

func (e duplicateError) Error() string {
	return e.field + " already exists"
}

func (e duplicateError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}
