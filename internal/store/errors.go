package store

import "errors"

var (
	// ErrNotFound covers both truly absent rows and rows outside the caller's
	// organization; the two cases must stay indistinguishable.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict signals a uniqueness violation (org name, user email,
	// org-scoped tag name).
	ErrConflict = errors.New("store: resource conflict")

	// ErrInvalidInput marks malformed input shape (lengths, formats).
	ErrInvalidInput = errors.New("store: invalid input")
)
