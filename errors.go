package flashguard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a miss with no backing record.
	ErrNotFound = errors.New("flashguard: not found")
	// ErrResourceExhausted reports depleted stock. Not retried.
	ErrResourceExhausted = errors.New("flashguard: insufficient stock")
	// ErrDuplicateRequest reports a requester that already holds a reservation. Not retried.
	ErrDuplicateRequest = errors.New("flashguard: duplicate request")
	// ErrLockContention reports a lock held by someone else. Callers skip redundant work.
	ErrLockContention = errors.New("flashguard: lock contention")
	// ErrNotStarted and ErrEnded report a request outside the resource's active window.
	ErrNotStarted = errors.New("flashguard: sale not started")
	ErrEnded      = errors.New("flashguard: sale ended")
)

// TransientError wraps a network/store failure of a remote operation.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: transient store failure", e.Op)
	}
	return fmt.Sprintf("%s: transient store failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a *TransientError. nil stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
