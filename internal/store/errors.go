package store

import "errors"

var (
	// ErrNotFound is returned when a row is absent.
	ErrNotFound = errors.New("record not found")

	// ErrClaimConflict is returned when a claim lost the atomic race
	// against another in-flight claimer for the same tenant. Recoverable:
	// the caller simply has nothing to process.
	ErrClaimConflict = errors.New("queue claim conflict")
)

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
