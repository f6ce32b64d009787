package aggcache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by a closed Manager.
	ErrClosed = errors.New("aggcache: manager closed")

	// ErrInvalidRequest is returned for malformed aggregation requests.
	ErrInvalidRequest = errors.New("aggcache: invalid request")
)

// ErrPublish indicates that a segment was built but could not be stored in
// any cache backend.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrPublish struct {
	HeaderID string
	cause    error
}

func (e *ErrPublish) Error() string {
	return fmt.Sprintf("aggcache: publish %s: %v", e.HeaderID, e.cause)
}

func (e *ErrPublish) Unwrap() error { return e.cause }
