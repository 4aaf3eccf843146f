package vector

import (
	"fmt"

	"github.com/vectorizer-project/vectorizer/internal/verrors"
)

// ErrDimensionMismatch is returned when an input vector's dimensionality
// does not match the collection's configured dim.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// AsVectorizerError converts the dimension mismatch into the structured
// error type carried through the rest of the system.
func (e ErrDimensionMismatch) AsVectorizerError() *verrors.VectorizerError {
	return verrors.New(verrors.ErrCodeDimensionMismatch, e.Error(), e).
		WithDetail("expected_dim", fmt.Sprintf("%d", e.Expected)).
		WithDetail("got_dim", fmt.Sprintf("%d", e.Got))
}

// ErrOutOfRange is returned when an index was never appended to the store.
type ErrOutOfRange struct {
	Index Index
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("index %d out of range", e.Index)
}

// ErrTombstoned is returned when an index refers to a deleted slot.
type ErrTombstoned struct {
	Index Index
}

func (e ErrTombstoned) Error() string {
	return fmt.Sprintf("index %d is tombstoned", e.Index)
}

// ErrOutOfCapacity is returned when the mmap backend cannot grow its
// backing file further.
type ErrOutOfCapacity struct {
	Path string
	Err  error
}

func (e ErrOutOfCapacity) Error() string {
	return fmt.Sprintf("out of capacity growing %s: %v", e.Path, e.Err)
}

func (e ErrOutOfCapacity) Unwrap() error { return e.Err }

// ErrCorrupted is returned when a CRC check on a mmap read fails.
type ErrCorrupted struct {
	Path string
	Want uint32
	Got  uint32
}

func (e ErrCorrupted) Error() string {
	return fmt.Sprintf("corrupted record in %s: want crc %x, got %x", e.Path, e.Want, e.Got)
}
