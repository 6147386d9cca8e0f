package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrConcurrency indicates the aggregate was modified concurrently; the
	// caller must reload and retry.
	ErrConcurrency = errors.New("repository: concurrent modification")
)
