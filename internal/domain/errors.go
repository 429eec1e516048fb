package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch means no photo of a submission could be acquired, so no
	// post was created.
	ErrEmptyBatch = errors.New("no photos could be acquired")

	// ErrPostNotFound is returned when deleting a post that does not exist.
	ErrPostNotFound = errors.New("post not found")
)

// AcquisitionError reports a failed fetch or write of a single photo. It
// never aborts sibling acquisitions.
type AcquisitionError struct {
	FileID string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire photo %s: %v", e.FileID, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// EmptyBatchError carries the per-photo failures of a submission where
// nothing was acquired. errors.Is(err, ErrEmptyBatch) holds for it.
type EmptyBatchError struct {
	Failures []error
}

func (e *EmptyBatchError) Error() string {
	return fmt.Sprintf("%v (%d failed)", ErrEmptyBatch, len(e.Failures))
}

func (e *EmptyBatchError) Unwrap() []error {
	return append([]error{ErrEmptyBatch}, e.Failures...)
}

// StoreWriteError reports that a post could not be persisted. Nothing was
// written when it is returned.
type StoreWriteError struct {
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store post: %v", e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}
