package domain

import "errors"

// Failure taxonomy for the retrieval core. Callers match with errors.Is;
// every error carries the operation and identifier it failed on. The core
// never retries on its own.
var (
	// ErrInvalidInput rejects a single call: empty or oversized text, k < 1.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig rejects bad chunking parameters before any network call.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrDimensionMismatch indicates a configuration error between the
	// embedding client and the vector store. Never auto-corrected.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelUnavailable is returned when the embedding endpoint cannot be
	// reached or rejects the request.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or fails an operation.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)
