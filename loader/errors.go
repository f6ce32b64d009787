package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a Request is malformed.
	ErrInvalidRequest = errors.New("loader: invalid request")

	// ErrUnknownGroupingSet is returned when a row's rolled-up columns match
	// no grouping set of the request.
	ErrUnknownGroupingSet = errors.New("loader: row matches no grouping set")

	// ErrDuplicateCell is returned when two rows of one grouping set share a
	// coordinate.
	ErrDuplicateCell = errors.New("loader: duplicate cell")

	// ErrRowShape is returned when a row has the wrong number of values, a
	// malformed grouping descriptor or a NaN column value.
	ErrRowShape = errors.New("loader: unexpected row shape")
)

// RowError reports the row a load failed on.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}
