package errors

import "errors"

// Session errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoSession          = errors.New("no authenticated user")
)

// Remote store errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// Sync errors.
var (
	// ErrSyncInFlight means a push or pull was skipped because another
	// run already holds the session guard. Nothing was synced.
	ErrSyncInFlight = errors.New("sync already in flight")
)
