package service

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidRequest wraps request validation failures other than an empty clip.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyBatch is returned for a batch without clips.
	ErrEmptyBatch = errors.New("batch has no clips")
	// ErrBatchTooLarge is returned for a batch above the configured limit.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrOverloaded marks clips that could not be queued for a worker.
	ErrOverloaded = errors.New("scoring queue full")
)
