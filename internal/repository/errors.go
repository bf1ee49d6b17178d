package repository

import "errors"

var (
	// ErrConcurrencyConflict means a guarded update lost its version race
	// and must be re-read before retrying.
	ErrConcurrencyConflict = errors.New("repository: record was modified by another process")

	// ErrSnapshotNotFound means no snapshot exists for the invoice id.
	ErrSnapshotNotFound = errors.New("repository: snapshot not found")
)
