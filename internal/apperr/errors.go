package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOversizedRead is returned by the store when a row's body exceeds the
	// physical read limit. Callers recover by truncating the row in place.
	ErrOversizedRead = errors.New("row exceeds read limit")
)
