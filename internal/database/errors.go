package database

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentModification is returned when an optimistic-concurrency
	// update touched zero rows because another transaction advanced the
	// version first. The reservation workflow remaps it to a business error.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)
