// Package errors provides common domain error types for notewatch.
//
// It defines sentinel errors for conditions shared across packages (duplicate
// claims, finalize conflicts, missing records) so callers can use errors.Is()
// instead of string matching, plus the terminal outcome vocabulary that is
// part of the wire contract with downstream consumers.
package errors

import "errors"

// Domain errors.
var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed indicates a trigger ledger key is already present,
	// either in progress or finalized.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrNotClaimed indicates a finalize was attempted for a key that was
	// never claimed.
	ErrNotClaimed = errors.New("not claimed")

	// ErrOutcomeMismatch indicates a duplicate finalize carried a different
	// outcome than the one already recorded. This is a programming error and
	// must surface, not silently overwrite.
	ErrOutcomeMismatch = errors.New("outcome mismatch")

	// ErrAlreadyRecorded indicates a result record already exists for the key.
	ErrAlreadyRecorded = errors.New("already recorded")

	// ErrSupervisionActive indicates a second supervision was requested while
	// one is still alive.
	ErrSupervisionActive = errors.New("supervision active")

	// ErrTransient marks a lifecycle API failure that is absorbed into the
	// existing retry cadence rather than surfaced as its own outcome.
	ErrTransient = errors.New("transient lifecycle error")
)

// Is is a passthrough to the standard library, so callers that already import
// this package do not need both.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyClaimed reports whether any error in err's chain is ErrAlreadyClaimed.
func IsAlreadyClaimed(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed)
}

// IsOutcomeMismatch reports whether any error in err's chain is ErrOutcomeMismatch.
func IsOutcomeMismatch(err error) bool {
	return errors.Is(err, ErrOutcomeMismatch)
}

// IsTransient reports whether any error in err's chain is ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
