package mcmot

import (
	"errors"
	"fmt"

	"github.com/swdee/go-mcmot/tracker"
	"gonum.org/v1/gonum/mat"
)

// ErrExtractorCount is returned when an Extractor does not return exactly one
// embedding per detection
var ErrExtractorCount = errors.New("extractor returned wrong number of embeddings")

// Extractor turns a batch of detections into one appearance embedding each,
// in input order
type Extractor[T any] interface {
	Extract(batch []T) ([][]float32, error)
}

// ExtractorFunc adapts a function to the Extractor interface
type ExtractorFunc[T any] func(batch []T) ([][]float32, error)

// Extract calls f(batch)
func (f ExtractorFunc[T]) Extract(batch []T) ([][]float32, error) {
	return f(batch)
}

// PassThrough is an Extractor for detections that already carry their
// embedding
type PassThrough struct{}

// Extract returns the batch as is
func (PassThrough) Extract(batch [][]float32) ([][]float32, error) {
	return batch, nil
}

// Tracker combines an embedding extractor, the frame matcher and a graph
// refinement model.  It is not safe for concurrent use.
type Tracker[T any] struct {
	extractor Extractor[T]
	refiner   tracker.Refiner
	gt        *tracker.GraphTracker
}

// New returns a Tracker with empty state.  The refiner may be nil if
// GraphInfer is never called.
func New[T any](ex Extractor[T], r tracker.Refiner,
	opts ...tracker.Option) (*Tracker[T], error) {

	if ex == nil {
		return nil, errors.New("extractor is required")
	}

	gt, err := tracker.NewGraphTracker(opts...)

	if err != nil {
		return nil, err
	}

	return &Tracker[T]{
		extractor: ex,
		refiner:   r,
		gt:        gt,
	}, nil
}

// Process extracts embeddings for a frame's detections, associates them with
// all previous detections and returns a track id per detection in input
// order.  On error no state is changed.
func (t *Tracker[T]) Process(batch []T) ([]int, error) {

	assigns, err := t.ProcessDetailed(batch)

	if err != nil {
		return nil, err
	}

	ids := make([]int, len(assigns))

	for i, a := range assigns {
		ids[i] = a.TrackID
	}

	return ids, nil
}

// ProcessDetailed is Process but returns how each detection was assigned
func (t *Tracker[T]) ProcessDetailed(batch []T) ([]tracker.Assignment, error) {

	if len(batch) == 0 {
		return nil, tracker.ErrEmptyBatch
	}

	features, err := t.extractor.Extract(batch)

	if err != nil {
		return nil, fmt.Errorf("embedding extraction failed: %w", err)
	}

	if len(features) != len(batch) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrExtractorCount,
			len(batch), len(features))
	}

	return t.gt.UpdateDetailed(features)
}

// GraphInfer runs the refinement model over the current association graph
// and returns its output unmodified
func (t *Tracker[T]) GraphInfer() (mat.Matrix, error) {

	if t.refiner == nil {
		return nil, errors.New("no refinement model configured")
	}

	return t.gt.GraphInfer(t.refiner)
}

// Graph returns the underlying frame matcher.  It must only be read.
func (t *Tracker[T]) Graph() *tracker.GraphTracker {
	return t.gt
}

// Reset clears all tracking state
func (t *Tracker[T]) Reset() {
	t.gt.Reset()
}
