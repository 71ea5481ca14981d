package state

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates an attempt to overwrite a terminal task
// result with a different status. This is a contract violation and is always
// surfaced to the caller.
var ErrInvalidTransition = errors.New("invalid task result transition")

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// StorageError wraps a read or write failure of the backing store. It is
// fatal to the current operation and is never retried automatically.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
