// Package queue - errors.go
// Centralized, comparable error values used across the store logic.
package queue

// qerr is a lightweight comparable error type.
// Using constants of this type allows errors.Is to work as expected.
type qerr string

func (e qerr) Error() string { return string(e) }

var (
	ErrAlreadyQueued = qerr("player already in queue")
	ErrNotEnough     = qerr("not enough players in queue")
)
