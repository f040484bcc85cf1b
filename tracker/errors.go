package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch is returned when Update is called with no detections
	ErrEmptyBatch = errors.New("empty detection batch")
	// ErrEmptyGraph is returned when exporting before any node exists
	ErrEmptyGraph = errors.New("association graph has no nodes")
	// ErrDimensionMismatch is matched by every *DimensionMismatchError
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidThreshold is returned for a link threshold outside (0,1]
	ErrInvalidThreshold = errors.New("link threshold must be in (0,1]")
	// ErrSelfLoop is returned when linking a node to itself
	ErrSelfLoop = errors.New("cannot link node to itself")
)

// DimensionMismatchError reports an embedding whose length differs from the
// dimensionality established by the store or by the batch
type DimensionMismatchError struct {
	// Index is the batch position of the offending embedding
	Index int
	// Expected is the established dimensionality
	Expected int
	// Actual is the length of the offending embedding
	Actual int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding %d: dimension mismatch: expected %d, got %d",
		e.Index, e.Expected, e.Actual)
}

// Is lets errors.Is match ErrDimensionMismatch
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
