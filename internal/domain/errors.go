package domain

import "errors"

// Sentinel errors for the ledger core. Callers classify with errors.Is; the
// HTTP layer maps them to status codes in exactly one place. Store backends
// must translate driver errors into these before returning.
var (
	// ErrValidation covers bad input: zero delta, unknown category or
	// currency class, malformed identifiers. Rejected before any write.
	ErrValidation = errors.New("validation error")

	// ErrNotFound covers unknown account or transaction ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict is a concurrent-update collision on an account version.
	// Safe to retry a bounded number of times.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrState is an impermissible workflow transition, e.g. confirming an
	// already-rejected intent. Terminal for the caller.
	ErrState = errors.New("invalid state transition")

	// ErrAccountInactive rejects mutations against archived wallets.
	ErrAccountInactive = errors.New("account inactive")
)
