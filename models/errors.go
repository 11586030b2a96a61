package models

import "errors"

// Error kinds shared across the query pipeline. Callers match them with
// errors.Is; producers wrap them with context.
var (
	// ErrSchemaMismatch means a file's columns do not match the record kind
	// it was registered under.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrSourceUnavailable means the backing file is missing or unreadable.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedBatch means a pulled batch has inconsistent column lengths.
	ErrMalformedBatch = errors.New("malformed batch")
	// ErrDuplicateOrInvalidQuery is returned by registration.
	ErrDuplicateOrInvalidQuery = errors.New("duplicate or invalid query")
	ErrInvalidChunkSize        = errors.New("chunk size must be positive")
	// ErrSessionStarted is returned when a session is used after it was
	// converted into a query result.
	ErrSessionStarted = errors.New("session already started")
)
