package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader is returned when header parameters are inconsistent.
	ErrInvalidHeader = errors.New("segment: invalid header")

	// ErrShape is returned when a body's storage does not match its axes.
	ErrShape = errors.New("segment: body shape mismatch")
)

// ErrCellOutOfRange indicates a cell coordinate outside the body's axes.
type ErrCellOutOfRange struct {
	Axis    int
	Ordinal int
	Len     int
}

func (e *ErrCellOutOfRange) Error() string {
	return fmt.Sprintf("segment: cell ordinal %d out of range on axis %d (len %d)", e.Ordinal, e.Axis, e.Len)
}
