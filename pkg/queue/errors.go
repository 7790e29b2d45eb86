package queue

import "errors"

// Sentinel error kinds. Callers use errors.Is against these; operation
// wrapping adds the failing operation and the underlying error via
// fmt.Errorf's %w.
var (
	// ErrInvalidArgument marks a caller error caught before storage is
	// touched (a negative limit; a limit of 0 means unlimited).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotInitialized marks a call made before Initialize.
	ErrNotInitialized = errors.New("queue not initialized")

	// ErrStorageFailure marks a failure raised by the storage backend.
	ErrStorageFailure = errors.New("storage failure")
)
