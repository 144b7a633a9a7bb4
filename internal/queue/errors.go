package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrPoisonPayload marks a payload that cannot be decoded. Such items are
	// deleted, never retried.
	ErrPoisonPayload = errors.New("poison payload")
	// ErrNoHandler marks an item whose transport has no handler. Such items
	// are deleted.
	ErrNoHandler = errors.New("no handler for transport")
	// ErrHandlerFailed marks a handler error or panic. The claim is released.
	ErrHandlerFailed = errors.New("handler failed")
	// ErrItemNotFound is returned by lookups for a missing id.
	ErrItemNotFound = errors.New("work item not found")
)

// StorageError reports a failed read or write against the store. It is
// always surfaced to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("queue storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
