package models

import "errors"

var (
	// ErrInvalidQuery marks a malformed query or an out-of-range parameter.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrCorruptCursor marks a stored cursor that no longer matches the file prefix.
	ErrCorruptCursor = errors.New("sync cursor does not match file contents")
)
